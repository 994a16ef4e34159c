package main

import (
	"fmt"
	"io"
	"os"

	"github.com/always-cache/shellcache/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// CLI flags
	configFilenameFlag string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string

	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:           "shellcache",
	Short:         "Offline-first caching layer for web applications",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	if version == "" {
		version = "DEV"
	}
	rootCmd.Version = version
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFilenameFlag, "config", "", "Path to config file (applied on top of the built-in defaults)")
	flags.StringVar(&dbFilenameFlag, "db", "shellcache.db", "Cache DB file name (use 'memory' for an in-memory store)")
	flags.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flags.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

// setupLogging sends logs to stdout, and to the log file if specified.
func setupLogging() error {
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout}}
	if logFilenameFlag != "" {
		f, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		logFile = f
		logOutputs = append(logOutputs, f)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = zerolog.New(multiWriter).Level(logLevel).
		With().Timestamp().Str("build", version).Logger()
	return nil
}

// openStore returns the store for the --db flag and a function closing it.
func openStore(filename string) (cache.Store, func(), error) {
	if filename == "memory" {
		return cache.NewMemStore(), func() {}, nil
	}
	store, err := cache.NewSQLiteStore(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open cache db: %w", err)
	}
	return store, func() { store.Close() }, nil
}
