package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/traintracker-data/internal/common/config"
	"github.com/traintracker-data/internal/common/logger"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "traintracker",
		Usage:   "Fuse live rail positions and schedule adherence into per-train observations",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"TRAINTRACKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before reading the environment",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			scheduleCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file, if any, and then the layered configuration.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if envFile := c.String("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return config.Load(c.String("config"))
}

func newLogger(cfg config.LoggingConfig) logger.Logger {
	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLogLevel(cfg.Level)
	lc.FilePath = cfg.FilePath
	lc.DiscordURL = cfg.DiscordURL
	return logger.NewFromConfig(lc)
}
