package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cardsdata/formquery/pkg/db"
	"github.com/cardsdata/formquery/pkg/repository"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show migration status without applying migrations",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return RunMigrations(c.String("config"), c.Bool("status"), os.Stdout)
		},
	}
}

// RunMigrations applies pending migrations to the repository database, or
// only reports their status when statusOnly is set.
func RunMigrations(configPath string, statusOnly bool, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) && statusOnly {
		fmt.Fprintf(w, "Database does not exist yet: %s\n", dbPath)
		return nil
	}

	repo, err := openRepository(cfg, repository.WithoutMigrations())
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	manager := repo.Migrations()
	if statusOnly {
		return showMigrationStatus(manager, w)
	}

	applied, err := manager.ApplyPendingMigrations()
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	if applied == 0 {
		fmt.Fprintln(w, "✓ Database is up to date")
		return nil
	}
	fmt.Fprintf(w, "✓ Applied %d migrations to %s\n", applied, dbPath)
	return nil
}

func showMigrationStatus(manager *db.MigrationManager, w io.Writer) error {
	status, err := manager.GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	fmt.Fprintf(w, "Migrations: %d available, %d applied, %d pending\n",
		len(status.Available), len(status.Applied), len(status.Pending))
	for _, m := range status.Applied {
		fmt.Fprintf(w, "  ✓ %03d %s (%s)\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "  … %03d %s\n", m.Version, m.Name)
	}
	return nil
}
