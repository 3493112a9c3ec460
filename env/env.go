// Package env resolves command settings from cobra flags and the process
// environment.
package env

import (
	"log"
	"os"

	"github.com/agentuity/go-query/logger"
	"github.com/spf13/cobra"
)

// FlagOrEnv returns the value of the flag when it is set, then the value of
// the environment variable envName, and finally defaultValue.
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// LogLevel resolves the --log-level flag, then QUERY_LOG_LEVEL, then
// fallback. Unknown names resolve to info.
func LogLevel(cmd *cobra.Command, fallback string) logger.LogLevel {
	return logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, fallback), logger.LevelInfo)
}

// NewLogger returns a console logger by first checking the cobra.Command log-level flag, then the
// QUERY_LOG_LEVEL environment value and falling back to fallback
func NewLogger(cmd *cobra.Command, fallback string) logger.Logger {
	log.SetFlags(0)
	return logger.NewConsoleLogger(LogLevel(cmd, fallback))
}
