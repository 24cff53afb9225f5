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

package cmd

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/balancer/config"
	logger "github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog"
	"github.com/kri2060/A-performance-profiler-and-scheduler-for-efficient-training-on-heterogeneous-clusters/internal/dflog/logcore"
)

const (
	// BalancerEnvPrefix is the environment prefix for Viper. Both BindEnv
	// and AutomaticEnv will use this prefix.
	BalancerEnvPrefix = "balancer"
)

var cfg *config.Config
var cfgFile string

// balancerDescription is used to describe balancer command in details.
var balancerDescription = `balancer computes per-node batch sizes for synchronized data-parallel
training on heterogeneous clusters. It profiles node capabilities, tracks
per-iteration measurements and periodically redistributes the global batch
so every node finishes its share at roughly the same time.`

var balancerCmd = &cobra.Command{
	Use:               "balancer",
	Short:             "adaptive batch size balancer for heterogeneous training",
	Long:              balancerDescription,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
}

func init() {
	cfg = config.New()

	cobra.OnInitialize(initConfig)

	flagSet := balancerCmd.PersistentFlags()
	flagSet.BoolVar(&cfg.Console, "console", cfg.Console, "mirror log output to stdout")
	flagSet.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "print verbose log")
	flagSet.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "the directory to store log files")
	flagSet.StringVar(&cfgFile, "config", "", "the path of balancer's configuration file")

	balancerCmd.AddCommand(profileCmd)
	balancerCmd.AddCommand(simulateCmd)
	balancerCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(filepath.Dir(config.DefaultConfigFilePath))
		viper.SetConfigName(configName(config.DefaultConfigFilePath))
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(BalancerEnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Infof("using config file: %s", viper.ConfigFileUsed())
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Fatal(errors.Wrap(err, "cannot unmarshal config").Error())
	}
}

// initRun initializes logging and validates the effective configuration, run
// by every subcommand that executes the balancer.
func initRun() error {
	if err := logger.InitBalancer(cfg.Console, cfg.LogDir); err != nil {
		return errors.Wrap(err, "init balancer logger")
	}

	if cfg.Verbose {
		logcore.SetCoreLevel(zapcore.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "validate config")
	}

	return nil
}

func configName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Execute runs the balancer command.
func Execute() {
	if err := balancerCmd.Execute(); err != nil {
		logger.Errorf(err.Error())
		os.Exit(1)
	}
}
