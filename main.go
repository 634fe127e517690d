package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/localbridge/browserbridge/cmd"
	"github.com/localbridge/browserbridge/pkg/config"
)

func main() {
	app := &cli.Command{
		Name:  "browserbridge",
		Usage: "local WebSocket bridge between an MCP tool host and a browser extension",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the configuration file",
				Value: config.GetDefaultConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.ServeCommand(),
			cmd.StatusCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "browserbridge:", err)
		os.Exit(1)
	}
}
