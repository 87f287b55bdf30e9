package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cardsdata/formquery/pkg/config"
	"github.com/cardsdata/formquery/pkg/log"
	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/repository"
	"github.com/mattn/go-isatty"
)

// loadConfig reads the configuration file and applies its log settings.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Configure(log.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, nil
}

// openRepository opens the configured repository, creating its directory
// and applying pending migrations.
func openRepository(cfg *config.Config, opts ...repository.Option) (*repository.Repository, error) {
	dbPath := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	repo, err := repository.Open(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", dbPath, err)
	}
	return repo, nil
}

func closeRepository(repo *repository.Repository) {
	if err := repo.Close(); err != nil {
		fmt.Printf("Warning: failed to close repository: %v\n", err)
	}
}

// engineSettings maps the [search] table onto engine settings.
func engineSettings(cfg *config.Config) query.Settings {
	return query.Settings{
		AggregateType:     cfg.Search.AggregateType,
		ResourceSuperType: cfg.Search.ResourceSuperType,
		FormsRoot:         cfg.Search.FormsRoot,
		ContextWindow:     cfg.Search.ContextWindow,
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
