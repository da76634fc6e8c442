package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vscmirror/internal/config"
	"vscmirror/internal/utils"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "vscmirror",
		Short: "Offline mirror for Visual Studio Code",
		Long: `Mirrors Visual Studio Code installers and extensions into a local
artifacts tree and serves them through a gallery compatible gateway.`,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("artifacts", "", "mirror root directory")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	viper.BindPFlag("artifacts.directory", rootCmd.PersistentFlags().Lookup("artifacts"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}
}

// newLogger opens the configured log sink.
func newLogger(cfg config.Config) (*utils.Logger, io.Closer, error) {
	return utils.OpenLogger(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
}
