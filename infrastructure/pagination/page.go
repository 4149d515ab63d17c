package pagination

// Page is one slice of a row set.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextOffset int
}

// Paginate returns rows[offset:offset+size]. A non-positive size returns
// everything from offset.
func Paginate[T any](rows []T, size, offset int) Page[T] {
	if offset < 0 {
		offset = 0
	}
	if offset > len(rows) {
		offset = len(rows)
	}
	end := len(rows)
	if size > 0 && offset+size < end {
		end = offset + size
	}
	return Page[T]{
		Items:      rows[offset:end],
		HasMore:    end < len(rows),
		NextOffset: end,
	}
}
