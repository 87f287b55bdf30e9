package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show repository statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print statistics as JSON",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return showStats(c.String("config"), c.Bool("json"), os.Stdout)
		},
	}
}

// showStats displays repository statistics
func showStats(configPath string, asJSON bool, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	stats, err := repo.Stats()
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	formatStats(w, stats)
	return nil
}
