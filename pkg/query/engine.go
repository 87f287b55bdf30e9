package query

import (
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cardsdata/formquery/pkg/log"
)

// Settings are the tunables of the engine. They can be swapped while the
// engine serves requests.
type Settings struct {
	// AggregateType is the node type quick-search matches roll up to.
	AggregateType string `json:"aggregateType"`
	// ResourceSuperType restricts relevance queries.
	ResourceSuperType string `json:"resourceSuperType"`
	// FormsRoot is the subtree quick search looks into.
	FormsRoot     string `json:"formsRoot"`
	ContextWindow int    `json:"contextWindow"`
}

func DefaultSettings() Settings {
	return Settings{
		AggregateType:     "Form",
		ResourceSuperType: "Resource",
		FormsRoot:         "/Forms",
		ContextWindow:     DefaultWindow,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.AggregateType == "" {
		s.AggregateType = d.AggregateType
	}
	if s.ResourceSuperType == "" {
		s.ResourceSuperType = d.ResourceSuperType
	}
	if s.FormsRoot == "" {
		s.FormsRoot = d.FormsRoot
	}
	if s.ContextWindow <= 0 {
		s.ContextWindow = d.ContextWindow
	}
	return s
}

type Engine struct {
	exec     Executor
	settings atomic.Pointer[Settings]
	observer Observer
	logger   *log.Logger
}

func NewEngine(exec Executor, settings Settings, observer Observer) *Engine {
	if observer == nil {
		observer = NopObserver{}
	}
	e := &Engine{
		exec:     exec,
		observer: observer,
		logger:   log.ForService("engine"),
	}
	e.SetSettings(settings)
	return e
}

func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// SetSettings replaces the settings used by requests that start afterwards.
func (e *Engine) SetSettings(s Settings) {
	s = s.withDefaults()
	e.settings.Store(&s)
}

// RelevanceQuery wraps text into a structured query over the relevance index,
// restricted to nodes of the given super type.
func RelevanceQuery(text, superType string, escape bool) string {
	return fmt.Sprintf("SELECT n.* FROM [Node] AS n WHERE NATIVE('lucene', '%s') AND n.'sling:resourceSuperType' = '%s'",
		Escape(text, DialectRelevance, escape), strings.ReplaceAll(superType, "'", "''"))
}

// FullTextQuery wraps text into a structured containment query over all fields.
func FullTextQuery(text string, escape bool) string {
	return fmt.Sprintf("SELECT n.* FROM [Node] AS n WHERE CONTAINS(*, '%s')", Escape(text, DialectFullText, escape))
}

// Route runs the request in its mode and returns the matches, unpaginated.
func (e *Engine) Route(req Request) (iter.Seq[Record], error) {
	settings := e.Settings()

	var text string
	switch req.Mode {
	case ModeStructured:
		text = req.Text
	case ModeRelevance:
		text = RelevanceQuery(req.Text, settings.ResourceSuperType, req.Escape)
	case ModeFullText:
		text = FullTextQuery(req.Text, req.Escape)
	case ModeQuick:
		return NewAggregator(e.exec, settings, e.observer).Aggregate(req.Text, req.Escape)
	default:
		return empty, nil
	}

	e.logger.Debugf("%s query: %s", req.Mode, text)
	nodes, err := e.exec.RunStructured(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s query: %w", ErrExecution, req.Mode, err)
	}
	return func(yield func(Record) bool) {
		for n := range nodes {
			if !yield(NewRecord(n, nil)) {
				return
			}
		}
	}, nil
}

// Search routes the request and cuts the requested page out of the result.
func (e *Engine) Search(req Request) (*Response, error) {
	start := time.Now()

	records, err := e.Route(req)
	if err != nil {
		e.observer.QueryServed(req.Mode, time.Since(start), Window{}, err)
		return nil, err
	}

	rows, w := Paginate(records, req.Offset, req.Limit)
	e.observer.QueryServed(req.Mode, time.Since(start), w, nil)

	return &Response{
		Req:          req.Echo,
		Offset:       w.Offset,
		Limit:        w.Limit,
		ReturnedRows: w.Returned,
		TotalRows:    w.Total,
		Rows:         rows,
	}, nil
}
