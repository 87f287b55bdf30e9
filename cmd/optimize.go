package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cardsdata/formquery/pkg/repository"
	"github.com/urfave/cli/v3"
)

// maintenanceTask is one optimize operation run against the repository.
type maintenanceTask struct {
	name  string
	usage string
	run   func(repo *repository.Repository, w io.Writer) error
}

var maintenanceTasks = []maintenanceTask{
	{
		name:  "check",
		usage: "Run database and relevance index integrity checks",
		run: func(repo *repository.Repository, w io.Writer) error {
			problems, err := repo.IntegrityCheck()
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintf(w, "  ✗ %s\n", p)
				}
				return fmt.Errorf("integrity check found %d problems", len(problems))
			}
			fmt.Fprintln(w, "✓ Integrity check passed")
			return nil
		},
	},
	{
		name:  "reindex",
		usage: "Rebuild the relevance index from stored fields",
		run: func(repo *repository.Repository, w io.Writer) error {
			n, err := repo.Reindex()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Reindexed %s nodes\n", formatNumber(n))
			return nil
		},
	},
	{
		name:  "vacuum",
		usage: "Run VACUUM to defragment the database",
		run: func(repo *repository.Repository, w io.Writer) error {
			if err := repo.Vacuum(); err != nil {
				return err
			}
			fmt.Fprintln(w, "✓ VACUUM completed")
			return nil
		},
	},
	{
		name:  "checkpoint",
		usage: "Run WAL checkpoint to flush changes",
		run: func(repo *repository.Repository, w io.Writer) error {
			if err := repo.WALCheckpoint(); err != nil {
				return err
			}
			fmt.Fprintln(w, "✓ WAL checkpoint completed")
			return nil
		},
	},
}

var optimizeTask = maintenanceTask{
	name: "optimize",
	run: func(repo *repository.Repository, w io.Writer) error {
		if err := repo.Optimize(); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Index optimize, PRAGMA optimize and ANALYZE completed")
		return nil
	},
}

// OptimizeCommand creates the optimize command. Without a subcommand it
// merges index segments and refreshes planner statistics.
func OptimizeCommand() *cli.Command {
	var commands []*cli.Command
	for _, task := range maintenanceTasks {
		commands = append(commands, &cli.Command{
			Name:  task.name,
			Usage: task.usage,
			Action: func(ctx context.Context, c *cli.Command) error {
				return runMaintenance(c.String("config"), task, os.Stdout)
			},
		})
	}

	return &cli.Command{
		Name:     "optimize",
		Usage:    "Database optimization and maintenance commands",
		Commands: commands,
		Action: func(ctx context.Context, c *cli.Command) error {
			return runMaintenance(c.String("config"), optimizeTask, os.Stdout)
		},
	}
}

func runMaintenance(configPath string, task maintenanceTask, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	fmt.Fprintf(w, "Running %s on %s...\n", task.name, repo.Path())
	if err := task.run(repo, w); err != nil {
		return fmt.Errorf("%s: %w", task.name, err)
	}
	return nil
}
