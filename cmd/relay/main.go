package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Chronic700/Agent-Connect/internal/app"
	"github.com/Chronic700/Agent-Connect/internal/config"
	"github.com/Chronic700/Agent-Connect/internal/migrator"
	"github.com/Chronic700/Agent-Connect/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "relay",
		Usage:   "Agent Connect - agent-to-agent message relay",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a .env or yaml config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the relay server",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, c)
				},
			},
			{
				Name:  "migrate",
				Usage: "Database migration tools",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply all pending migrations",
						Action: func(ctx context.Context, c *cli.Command) error {
							return migrate(ctx, c, func(ctx context.Context, m *migrator.Migrator) error {
								version, applied, err := m.Up(ctx, -1)
								if err != nil {
									return err
								}
								fmt.Printf("version %d (%d applied)\n", version, applied)
								return nil
							})
						},
					},
					{
						Name:  "down",
						Usage: "Roll back one migration",
						Action: func(ctx context.Context, c *cli.Command) error {
							return migrate(ctx, c, func(ctx context.Context, m *migrator.Migrator) error {
								version, rolledBack, err := m.Down(ctx, 1)
								if err != nil {
									return err
								}
								fmt.Printf("version %d (%d rolled back)\n", version, rolledBack)
								return nil
							})
						},
					},
					{
						Name:  "version",
						Usage: "Print the current schema version",
						Action: func(ctx context.Context, c *cli.Command) error {
							return migrate(ctx, c, func(ctx context.Context, m *migrator.Migrator) error {
								version, err := m.Version(ctx)
								if err != nil {
									return err
								}
								fmt.Printf("version %d\n", version)
								return nil
							})
						},
					},
				},
			},
		},
		// Bare invocation runs the server.
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Parse(config.Flags{Config: c.String("config")})
	if err != nil {
		return err
	}
	return app.New(cfg).Run(ctx)
}

func migrate(ctx context.Context, c *cli.Command, fn func(context.Context, *migrator.Migrator) error) error {
	cfg, err := config.Parse(config.Flags{Config: c.String("config")})
	if err != nil {
		return err
	}

	m, err := migrator.New(migrator.MigrationOpts{PostgresURL: cfg.PostgresURL})
	if err != nil {
		return err
	}
	defer m.Close(ctx)

	return fn(ctx, m)
}
