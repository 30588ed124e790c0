// Package main is wirectl, a command line client for wirekit APIs.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "wirectl",
		Usage: "Call wirekit APIs and manage users",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "API endpoint",
				Value:   "http://localhost:8080/api",
				EnvVars: []string{"WIRECTL_URL"},
			},
			&cli.StringFlag{
				Name:    "cookies",
				Usage:   "File the session cookies are kept in between calls",
				Value:   defaultCookieFile(),
				EnvVars: []string{"WIRECTL_COOKIES"},
			},
		},
		Commands: []*cli.Command{
			describeCmd(),
			callCmd(),
			authCmd(),
			seedCmd(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}
