package census

import (
	"context"

	"github.com/lox/shrimpwatch/internal/logger"
)

// DefaultCandidates are the frozen shrimp HS codes, most specific first.
var DefaultCandidates = []string{"0306170000", "030617"}

// Fetcher is satisfied by *Client.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) (*Result, error)
}

// AttemptFunc observes each fallback attempt. res may be nil when no response was received.
type AttemptFunc func(candidate string, res *Result, err error)

// FetchWithFallback tries each candidate code in order and returns the first result with rows,
// together with the candidate that produced it. Errors and empty results move on to the next
// candidate; nothing is retried.
func FetchWithFallback(ctx context.Context, f Fetcher, candidates []string, from, to string, fields []string, onAttempt AttemptFunc) (*Result, string, error) {
	var lastErr error
	for _, code := range candidates {
		res, err := f.Fetch(ctx, Query{CommodityCode: code, From: from, To: to, Fields: fields})
		if onAttempt != nil {
			onAttempt(code, res, err)
		}
		if err != nil {
			logger.L().Warn().Err(err).Str("candidate", code).Msg("census: candidate failed")
			lastErr = err
			continue
		}
		if res.Table.Len() > 0 {
			return res, code, nil
		}
		logger.L().Info().Str("candidate", code).Msg("census: candidate returned no rows")
	}
	return nil, "", &FallbackError{Candidates: candidates, Last: lastErr}
}
