package census

import (
	"errors"
	"fmt"
	"strings"
)

const (
	bodyExcerptLen   = 500
	formatExcerptLen = 200
)

var (
	// ErrMissingAPIKey is returned before any network activity when no credential is configured.
	ErrMissingAPIKey = errors.New("census: missing API key (set CENSUS_API_KEY)")

	// ErrNoData means every candidate answered but none had rows.
	ErrNoData = errors.New("census: no data")
)

// FetchError is a non-success HTTP status other than 204.
type FetchError struct {
	StatusCode int
	Body       string // truncated
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("census: HTTP %d: %s", e.StatusCode, e.Body)
}

// FormatError is a success response that is not a header plus at least one data row.
type FormatError struct {
	Excerpt string // truncated
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("census: unexpected response format or no rows returned: %s", e.Excerpt)
}

// FallbackError means no candidate commodity code produced rows.
// It unwraps to the last underlying failure, or to ErrNoData when there was none.
type FallbackError struct {
	Candidates []string
	Last       error
}

func (e *FallbackError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("census: no data for commodity codes %s", strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("census: fetch failed for commodity codes %s: last error: %v",
		strings.Join(e.Candidates, ", "), e.Last)
}

func (e *FallbackError) Unwrap() error {
	if e.Last == nil {
		return ErrNoData
	}
	return e.Last
}
