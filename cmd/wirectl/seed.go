package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tendant/wirekit/internal/auth"
	"github.com/tendant/wirekit/internal/config"
	apperrors "github.com/tendant/wirekit/internal/errors"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store/backend"
)

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "Create users directly in the configured storage",
		ArgsUsage: "[username:password...]",
		Description: "Reads the server configuration (WIRE_* variables, .env, WIRE_CONFIG_FILE).\n" +
			"Without arguments the WIRE_BOOTSTRAP_USERS list is used.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

			users := cfg.ParseBootstrapUsers()
			if c.NArg() > 0 {
				users, err = parseUsers(c.Args().Slice())
				if err != nil {
					return err
				}
			}
			if len(users) == 0 {
				return cli.Exit("no users to seed", 2)
			}

			storage, err := backend.Open(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			svc, err := auth.New(resource.Namespace(cfg.AuthNamespace), cfg.AuthID, storage.Factory, auth.WithLogger(logger))
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)
			failed := 0
			for _, u := range users {
				user, err := svc.Signup(c.Context, u.Username, u.Password)
				switch {
				case err == nil:
					green.Printf("created %s (%s)\n", user.Username, user.ID)
				case apperrors.IsCode(err, apperrors.CodeAlreadyExists):
					yellow.Printf("exists  %s\n", u.Username)
				default:
					failed++
					color.Red("failed  %s: %v\n", u.Username, err)
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d users could not be created", failed), 1)
			}
			return nil
		},
	}
}

func parseUsers(args []string) ([]config.BootstrapUser, error) {
	users := make([]config.BootstrapUser, 0, len(args))
	for _, a := range args {
		username, password, ok := strings.Cut(a, ":")
		if !ok || username == "" || password == "" {
			return nil, fmt.Errorf("invalid user %q, expected username:password", a)
		}
		users = append(users, config.BootstrapUser{Username: username, Password: password})
	}
	return users, nil
}
