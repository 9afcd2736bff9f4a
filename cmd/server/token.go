package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vedran77/textswap/internal/auth"
	"github.com/vedran77/textswap/internal/config"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a development bearer token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User id to put in the token subject",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if cfg.Auth.Mode != config.AuthJWT {
				return fmt.Errorf("tokens can only be minted with auth.mode=%s", config.AuthJWT)
			}

			token, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret).Issue(c.String("user"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}
