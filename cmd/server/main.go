package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/config"
	"github.com/vedran77/textswap/pkg/logger"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "textswap",
		Usage:   "Messaging and rating backend for the textbook exchange",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// Nop until a command has configured logging.
		logger.Global().Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the process logger.
func setup(c *cli.Context) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}

	var log *logger.Logger
	if cfg.Log.Development {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.Log.Level)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)
	return cfg, log, nil
}
