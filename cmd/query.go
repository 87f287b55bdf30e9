package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/cardsdata/formquery/pkg/query"
	"github.com/urfave/cli/v3"
)

// QueryCommand creates the query command
func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Search the repository",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Structured query (SQL2 dialect)",
			},
			&cli.StringFlag{
				Name:  "lucene",
				Usage: "Relevance-ranked text search over resources",
			},
			&cli.StringFlag{
				Name:  "fulltext",
				Usage: "Full-text search over every node",
			},
			&cli.StringFlag{
				Name:  "quick",
				Usage: "Quick search over form answers, aggregated per form",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of rows to return (0 or less for all)",
				Value: int(query.DefaultLimit),
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of rows to skip",
				Value: int(query.DefaultOffset),
			},
			&cli.BoolFlag{
				Name:  "no-escape",
				Usage: "Pass the query text through without escaping",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "req",
				Usage: "Opaque value echoed back in the response",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw JSON response",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			opts := queryOptions{
				Structured: c.String("query"),
				Relevance:  c.String("lucene"),
				FullText:   c.String("fulltext"),
				Quick:      c.String("quick"),
				Limit:      int64(c.Int("limit")),
				Offset:     int64(c.Int("offset")),
				NoEscape:   c.Bool("no-escape"),
				Req:        c.String("req"),
				JSON:       c.Bool("json"),
			}
			return runQuery(c.String("config"), opts, os.Stdout)
		},
	}
}

type queryOptions struct {
	Structured string
	Relevance  string
	FullText   string
	Quick      string
	Limit      int64
	Offset     int64
	NoEscape   bool
	Req        string
	JSON       bool
}

// values renders the options as the request parameters the HTTP endpoint
// accepts. Query text is percent-encoded so it survives the extra decoding
// step of the request parser unchanged.
func (o queryOptions) values() url.Values {
	v := url.Values{}
	for _, p := range []struct{ name, text string }{
		{"query", o.Structured},
		{"lucene", o.Relevance},
		{"fulltext", o.FullText},
		{"quick", o.Quick},
	} {
		if p.text != "" {
			v.Set(p.name, url.QueryEscape(p.text))
		}
	}
	v.Set("limit", strconv.FormatInt(o.Limit, 10))
	v.Set("offset", strconv.FormatInt(o.Offset, 10))
	if o.NoEscape {
		v.Set("doNotEscapeQuery", "true")
	}
	if o.Req != "" {
		v.Set("req", o.Req)
	}
	return v
}

func runQuery(configPath string, opts queryOptions, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepository(repo)

	return runSearch(query.NewEngine(repo, engineSettings(cfg), nil), opts, w)
}

func runSearch(engine *query.Engine, opts queryOptions, w io.Writer) error {
	req, err := query.ParseRequest(opts.values())
	if err != nil {
		return fmt.Errorf("parsing request: %w", err)
	}
	if req.Mode == query.ModeNone {
		return fmt.Errorf("one of --query, --lucene, --fulltext or --quick is required")
	}

	resp, err := engine.Search(req)
	if err != nil {
		return err
	}

	if opts.JSON || !isTerminal(w) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	formatResponse(w, resp)
	return nil
}
