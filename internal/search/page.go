package search

import "strconv"

const (
	// DefaultCount is the page size when _count is absent.
	DefaultCount = 100

	// MaxCount caps the page size regardless of what the client asks for.
	MaxCount = 1000
)

// Page holds normalized pagination bounds for one search request.
type Page struct {
	Count  int
	Offset int
}

// NormalizePage validates raw _count/_offset values. Absent values take the
// defaults; values that are present but not base-10 integers are a client
// error. Negative integers parse fine and are clamped to zero so the page
// query never sees a negative LIMIT or OFFSET.
func NormalizePage(rawCount, rawOffset string) (Page, error) {
	count := DefaultCount
	if rawCount != "" {
		n, err := strconv.Atoi(rawCount)
		if err != nil {
			return Page{}, &ValidationError{Message: "Invalid pagination parameters"}
		}
		count = n
	}
	if count > MaxCount {
		count = MaxCount
	}
	if count < 0 {
		count = 0
	}

	offset := 0
	if rawOffset != "" {
		n, err := strconv.Atoi(rawOffset)
		if err != nil {
			return Page{}, &ValidationError{Message: "Invalid pagination parameters"}
		}
		offset = n
	}
	if offset < 0 {
		offset = 0
	}

	return Page{Count: count, Offset: offset}, nil
}
