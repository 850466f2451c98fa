package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// QuoteRequest describes one swap quote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      int64
	SlippageBps int
}

// Quote is the venue answer for a QuoteRequest.
type Quote struct {
	OutputAmount   int64
	PriceImpactPct float64
	RouteHops      int
}

// QuoteSource fetches a single quote.
type QuoteSource interface {
	Fetch(ctx context.Context, req QuoteRequest) (Quote, error)
}

// FetchError is a non-success answer from the venue.
type FetchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	body := strings.TrimSpace(e.Body)
	switch {
	case e.StatusCode != 0 && body != "":
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return body
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is the venue throttling us.
func IsRateLimited(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode == http.StatusTooManyRequests
	}
	return false
}
