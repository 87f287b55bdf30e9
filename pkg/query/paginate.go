package query

import "iter"

// Paginate consumes records once. Every record counts toward the total;
// only those past offset and within limit are kept. Negative offset or limit
// behave as zero, but the window echoes the values as given.
func Paginate(records iter.Seq[Record], offset, limit int64) ([]Record, Window) {
	w := Window{Offset: offset, Limit: limit}
	skip, take := max(offset, 0), max(limit, 0)

	rows := make([]Record, 0, min(take, 64))
	for rec := range records {
		w.Total++
		if w.Total <= skip || int64(len(rows)) >= take {
			continue
		}
		rows = append(rows, rec)
	}
	w.Returned = int64(len(rows))
	return rows, w
}
