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

package logger

import (
	"path/filepath"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog/logcore"
)

// InitBalancer initializes the file-backed core logger for the balancer
// process. When console is true, log output is mirrored to stdout.
func InitBalancer(console bool, logDir string) error {
	coreLogger, err := logcore.CreateLogger(filepath.Join(logDir, logcore.CoreLogFileName), false, console)
	if err != nil {
		return err
	}
	SetCoreLogger(coreLogger.Sugar())

	return nil
}
