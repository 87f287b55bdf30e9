package query

import "fmt"

// FindAncestorOfType walks from n up through its parents and returns the
// first node whose type is typ. n itself is a candidate. It returns nil when
// the root is reached without a match.
func FindAncestorOfType(n Node, typ string) (Node, error) {
	for cur := n; cur != nil; {
		if cur.Type() == typ {
			return cur, nil
		}
		parent, err := cur.Parent()
		if err != nil {
			return nil, fmt.Errorf("reading parent of %s: %w", cur.Path(), err)
		}
		cur = parent
	}
	return nil, nil
}
