package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convcore/internal/logger"
)

var (
	defPath   string
	seed      int64
	logLevel  string
	logFormat string
	debug     bool
)

func defFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "def",
			Aliases:     []string{"d"},
			Usage:       "path to operator definition (.yaml, .yml or .json)",
			Required:    true,
			Destination: &defPath,
		},
		&cli.IntFlag{
			Name:        "seed",
			Usage:       "seed for synthesized tensors",
			Value:       1,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}
