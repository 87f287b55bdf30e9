package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit  int64 = 10
	DefaultOffset int64 = 0
)

type Mode int

const (
	ModeNone Mode = iota
	ModeStructured
	ModeRelevance
	ModeFullText
	ModeQuick
)

func (m Mode) String() string {
	switch m {
	case ModeStructured:
		return "structured"
	case ModeRelevance:
		return "relevance"
	case ModeFullText:
		return "fulltext"
	case ModeQuick:
		return "quick"
	default:
		return "none"
	}
}

// modeParams is the order in which request parameters claim the mode.
// The first non-blank one wins; clients relying on it send several.
var modeParams = []struct {
	param string
	mode  Mode
}{
	{"query", ModeStructured},
	{"lucene", ModeRelevance},
	{"fulltext", ModeFullText},
	{"quick", ModeQuick},
}

// Request is one parsed search invocation.
type Request struct {
	Mode   Mode
	Text   string
	Escape bool
	Offset int64
	Limit  int64
	Echo   string
}

// ParseRequest builds a Request from raw request parameters. Query text is
// percent-decoded once more on top of the transport decoding; a malformed
// escape yields ErrDecode. Unparseable limit and offset fall back to their
// defaults.
func ParseRequest(values url.Values) (Request, error) {
	req := Request{
		Escape: values.Get("doNotEscapeQuery") != "true",
		Offset: parseInt(values.Get("offset"), DefaultOffset),
		Limit:  parseInt(values.Get("limit"), DefaultLimit),
		Echo:   values.Get("req"),
	}
	if strings.TrimSpace(req.Echo) == "" {
		req.Echo = ""
	}

	for _, p := range modeParams {
		raw := values.Get(p.param)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		text, err := url.QueryUnescape(raw)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s: %v", ErrDecode, p.param, err)
		}
		req.Mode = p.mode
		req.Text = text
		break
	}
	return req, nil
}

func parseInt(s string, def int64) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
