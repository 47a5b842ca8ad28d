package main

import (
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/config"
	"github.com/jamesainslie/filmaudit/pkg/filmaudit/logging"
)

// loggingConfig maps configuration and output flags onto the logging setup.
// The console mirrors warnings by default, errors only with --quiet, and
// everything with --verbose. Interactive runs keep the console for the
// progress display.
func loggingConfig(cfg *config.Config, verbose, quiet, interactive bool) logging.Config {
	level := cfg.Logging.Level
	console := "warn"
	switch {
	case verbose:
		level = "debug"
		console = "debug"
	case quiet:
		console = "error"
	}
	if interactive {
		console = ""
	}

	return logging.Config{
		Level: level,
		Dir:   cfg.Logging.Dir,
		Retention: logging.RetentionConfig{
			MaxAge:     cfg.Logging.Retention.MaxAge,
			MaxBackups: cfg.Logging.Retention.MaxBackups,
		},
		Components:   cfg.Logging.Components,
		ConsoleLevel: console,
		Interactive:  interactive,
	}
}

// initLogging starts the run log. Callers defer logging.Close.
func initLogging(cfg *config.Config, interactive bool) error {
	if err := logging.Init(loggingConfig(cfg, getVerbose(), getQuiet(), interactive)); err != nil {
		return err
	}
	printVerbose("Run log: %s", logging.Path())
	return nil
}
