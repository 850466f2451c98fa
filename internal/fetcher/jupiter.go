package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	jupiterQuotePath = "/quote"
	maxErrorBody     = 512
)

// JupiterOptions parameterise the Jupiter quote fetcher.
type JupiterOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Jupiter fetches swap quotes from the Jupiter aggregator API.
type Jupiter struct {
	opts    JupiterOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewJupiter constructs a Jupiter fetcher.
func NewJupiter(opts JupiterOptions, logger zerolog.Logger) *Jupiter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag/v6"
	}

	return &Jupiter{
		opts:   opts,
		logger: logger.With().Str("component", "jupiter_fetcher").Logger(),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 30,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
	}
}

// Fetch requests one quote. Non-200 answers are returned as *FetchError.
func (j *Jupiter) Fetch(ctx context.Context, q QuoteRequest) (Quote, error) {
	if q.InputMint == "" || q.OutputMint == "" {
		return Quote{}, errors.New("input and output mints required")
	}
	if q.Amount <= 0 {
		return Quote{}, errors.New("amount must be greater than zero")
	}

	params := url.Values{}
	params.Set("inputMint", q.InputMint)
	params.Set("outputMint", q.OutputMint)
	params.Set("amount", strconv.FormatInt(q.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(q.SlippageBps))
	params.Set("onlyDirectRoutes", "false")
	params.Set("asLegacyTransaction", "false")

	endpoint := j.baseURL + jupiterQuotePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(j.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "quotedrift/1.0")
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return Quote{}, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, &FetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		j.logger.Debug().Int("status", resp.StatusCode).Msg("quote request rejected")
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var res quoteResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return Quote{}, fmt.Errorf("decode quote: %w", err)
	}

	out, err := decimal.NewFromString(res.OutAmount)
	if err != nil {
		return Quote{}, fmt.Errorf("parse outAmount: %w", err)
	}

	impact := 0.0
	if s := strings.TrimSpace(string(res.PriceImpactPct)); s != "" && s != "null" {
		d, err := decimal.NewFromString(strings.Trim(s, `"`))
		if err != nil {
			return Quote{}, fmt.Errorf("parse priceImpactPct: %w", err)
		}
		impact = d.InexactFloat64()
	}

	return Quote{
		OutputAmount:   out.IntPart(),
		PriceImpactPct: impact,
		RouteHops:      len(res.RoutePlan),
	}, nil
}

type quoteResponse struct {
	InputMint      string            `json:"inputMint"`
	OutputMint     string            `json:"outputMint"`
	InAmount       string            `json:"inAmount"`
	OutAmount      string            `json:"outAmount"`
	PriceImpactPct json.RawMessage   `json:"priceImpactPct"`
	RoutePlan      []json.RawMessage `json:"routePlan"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch {
		case apiErr.Error != "":
			return &FetchError{StatusCode: status, Body: apiErr.Error}
		case apiErr.Message != "":
			return &FetchError{StatusCode: status, Body: apiErr.Message}
		case apiErr.ErrorCode != "":
			return &FetchError{StatusCode: status, Body: apiErr.ErrorCode}
		}
	}
	body := strings.TrimSpace(string(payload))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &FetchError{StatusCode: status, Body: body}
}

var _ QuoteSource = (*Jupiter)(nil)
