package main

import (
	"github.com/urfave/cli/v2"

	"github.com/vedran77/textswap/internal/database"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the Postgres schema",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := database.Connect(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			return database.Migrate(c.Context, pool, log)
		},
	}
}
