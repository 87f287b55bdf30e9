package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cardsdata/formquery/pkg/repository"
	"github.com/urfave/cli/v3"
)

// ImportCommand creates the import command
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import node trees from YAML or JSON files (- reads stdin)",
		ArgsUsage: "FILE...",
		Action: func(ctx context.Context, c *cli.Command) error {
			paths := c.Args().Slice()
			if len(paths) == 0 {
				return fmt.Errorf("no files to import")
			}
			return importFiles(c.String("config"), paths, os.Stdin, os.Stdout)
		},
	}
}

// importFiles imports every file in order. Each file is its own
// transaction; the first failure stops the run.
func importFiles(configPath string, paths []string, stdin io.Reader, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	var nodes, refs int
	for _, path := range paths {
		res, err := importFile(repo, path, stdin)
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		nodes += res.Nodes
		refs += res.References
		fmt.Fprintf(w, "✓ %s: %d nodes, %d references\n", path, res.Nodes, res.References)
	}

	if len(paths) > 1 {
		fmt.Fprintf(w, "Imported %d nodes and %d references from %d files\n", nodes, refs, len(paths))
	}
	return nil
}

func importFile(repo *repository.Repository, path string, stdin io.Reader) (*repository.ImportResult, error) {
	if path == "-" {
		return repo.Import(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Printf("Warning: failed to close %s: %v\n", path, err)
		}
	}()
	return repo.Import(f)
}
