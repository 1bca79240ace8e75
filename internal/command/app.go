package command

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"taskhive/server/internal/config"
)

type Deps struct {
	LoadConfig   func(path string) (config.Config, error)
	RunServe     func(context.Context, config.Config) error
	RunMigrateUp func(context.Context, config.Config) error
}

func BuildApp(deps Deps) *cli.App {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "path to TOML config file",
		EnvVars: []string{"TASKHIVE_CONFIG"},
	}
	return &cli.App{
		Name:  "taskhive",
		Usage: "task management API server",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(deps, ctx.String("config"))
			if err != nil {
				return err
			}
			return runServe(ctx.Context, deps, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP server",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx *cli.Context) error {
					cfg, err := loadConfig(deps, ctx.String("config"))
					if err != nil {
						return err
					}
					return runServe(ctx.Context, deps, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "run database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Flags: []cli.Flag{configFlag},
						Action: func(ctx *cli.Context) error {
							cfg, err := loadConfig(deps, ctx.String("config"))
							if err != nil {
								return err
							}
							return runMigrateUp(ctx.Context, deps, cfg)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps, path string) (config.Config, error) {
	if deps.LoadConfig != nil {
		return deps.LoadConfig(path)
	}
	return config.Load(path)
}

func runServe(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunServe == nil {
		return errors.New("serve runner is not configured")
	}
	return deps.RunServe(ctx, cfg)
}

func runMigrateUp(ctx context.Context, deps Deps, cfg config.Config) error {
	if deps.RunMigrateUp == nil {
		return errors.New("migrate up runner is not configured")
	}
	return deps.RunMigrateUp(ctx, cfg)
}
