package query

import "time"

// Observer receives query outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	QueryServed(mode Mode, took time.Duration, w Window, err error)
	NodeSkipped(reason SkipReason)
}

type NopObserver struct{}

func (NopObserver) QueryServed(Mode, time.Duration, Window, error) {}
func (NopObserver) NodeSkipped(SkipReason)                          {}
