package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/moxide/internal"
	"github.com/starford/moxide/internal/apperr"
)

func serve(ctx context.Context, cmd *cli.Command) error {
	opts := []internal.Option{}
	if p := cmd.String("config"); p != "" {
		opts = append(opts, internal.WithSettingsPath(p))
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func dailyNote(_ context.Context, cmd *cli.Command) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := internal.DailyNotePath(cwd, cmd.String("config"), time.Now())
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func configPath(_ context.Context, _ *cli.Command) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := internal.ConfigPath(cwd)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("%w: no configuration file found", apperr.ErrConfig)
	}
	fmt.Println(path)
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts := []internal.Option{}
	if p := cmd.String("config"); p != "" {
		opts = append(opts, internal.WithSettingsPath(p))
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a settings file (overrides the default search)",
		Sources: cli.EnvVars("MOXIDE_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "moxide",
		Usage:  "MyST language server with cross-reference intelligence for Markdown vaults",
		Action: serve,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "daily-note",
				Usage:  "Print today's daily-note path for the current vault",
				Action: dailyNote,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "config-path",
				Usage:  "Print the path of the active configuration file",
				Action: configPath,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the vault over the Model Context Protocol on stdio",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		if errors.Is(err, apperr.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
