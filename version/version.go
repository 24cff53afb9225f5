/*
 *     Copyright 2023 The Balancer Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package version

import (
	"fmt"
	"runtime"
)

const (
	Major = "1"
	Minor = "0"
)

// Set by ldflags at build time.
var (
	GitVersion = "v1.0.0"
	GitCommit  = "unknown"
	BuildTime  = "unknown"
	Gotags     = "none"
	Gogcflags  = "none"
)

var (
	GoVersion = runtime.Version()
	Platform  = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
)

// Version returns the full version string.
func Version() string {
	return fmt.Sprintf("%s, commit: %s, platform: %s, build time: %s, go version: %s", GitVersion, GitCommit, Platform, BuildTime, GoVersion)
}
