// Package elliptic is a client for the Elliptic wallet exposure API.
//
// Requests are signed per Elliptic's scheme: an HMAC-SHA256 over
// timestamp + method + lowercased path + body, keyed with the
// base64-decoded API secret, sent base64-encoded in x-access-sign.
package elliptic

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/walletscreen/walletscreen/internal/compliance"
	"github.com/walletscreen/walletscreen/internal/retry"
)

// FinancialSummary is the wallet's cluster-level money flow in USD.
type FinancialSummary struct {
	InflowUSD  float64 `json:"inflowUsd"`
	OutflowUSD float64 `json:"outflowUsd"`
	BalanceUSD float64 `json:"balanceUsd"`
}

// Analysis is a decoded wallet exposure response.
type Analysis struct {
	Assessment *compliance.Assessment
	Financial  FinancialSummary
}

// Options configures a Client.
type Options struct {
	APIKey     string
	APISecret  string // base64-encoded
	BaseURL    string // full analysis endpoint URL
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client calls the synchronous wallet analysis endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	signPath   string
	apiKey     string
	secret     []byte
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient builds a Client. The API secret must be valid base64 and the
// base URL must parse.
func NewClient(opts Options) (*Client, error) {
	secret, err := base64.StdEncoding.DecodeString(opts.APISecret)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	endpoint, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if endpoint.Path == "" {
		return nil, fmt.Errorf("api url %q has no path", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = 2 * time.Second
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		signPath:   strings.ToLower(endpoint.Path),
		apiKey:     opts.APIKey,
		secret:     secret,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// sign computes the request signature for one attempt. Each retry is
// re-signed with a fresh timestamp.
func (c *Client) sign(timestamp, method string, body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(c.signPath))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type analysisRequest struct {
	Subject analysisSubject `json:"subject"`
	Type    string          `json:"type"`
}

type analysisSubject struct {
	Hash       string `json:"hash"`
	Type       string `json:"type"`
	Asset      string `json:"asset"`
	Blockchain string `json:"blockchain"`
}

// AnalyzeWallet submits a holistic wallet exposure analysis for the
// address. Rate limits, server errors, and transport failures are retried
// with backoff; auth failures and malformed responses are not.
func (c *Client) AnalyzeWallet(ctx context.Context, address string) (*Analysis, error) {
	body, err := json.Marshal(analysisRequest{
		Subject: analysisSubject{
			Hash:       address,
			Type:       "address",
			Asset:      "holistic",
			Blockchain: "holistic",
		},
		Type: "wallet_exposure",
	})
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}

	var analysis *Analysis
	err = retry.Do(ctx, c.maxRetries, c.retryDelay, func() error {
		result, attemptErr := c.attempt(ctx, body)
		if attemptErr != nil {
			var apiErr *APIError
			if errors.As(attemptErr, &apiErr) && !apiErr.Transient() {
				return retry.Permanent(attemptErr)
			}
			return attemptErr
		}
		analysis = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

func (c *Client) attempt(ctx context.Context, body []byte) (*Analysis, error) {
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Kind: KindUnexpected, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("x-access-key", c.apiKey)
	req.Header.Set("x-access-sign", c.sign(timestamp, http.MethodPost, body))
	req.Header.Set("x-access-timestamp", timestamp)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &APIError{
			Kind:    KindAuth,
			Status:  resp.StatusCode,
			Message: "API authentication failed. Please check your credentials.",
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("analysis rate limited")
		return nil, &APIError{
			Kind:    KindRateLimit,
			Status:  resp.StatusCode,
			Message: "API rate limit exceeded. Please try again later.",
		}
	case resp.StatusCode >= 500:
		return nil, &APIError{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Elliptic API server error (HTTP %d)", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return nil, &APIError{
			Kind:    KindUnexpected,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("API request failed: HTTP %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, classifyTransport(err)
	}

	var wire walletExposureResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &APIError{Kind: KindMalformed, Message: "Failed to parse API response"}
	}
	return wire.toAnalysis(), nil
}

// classifyTransport maps transport-level failures onto the error taxonomy.
func classifyTransport(err error) *APIError {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Message: "API request timed out. Please try again."}
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{Kind: KindUnexpected, Message: "request cancelled"}
	}
	return &APIError{Kind: KindConnection, Message: "Failed to connect to Elliptic API."}
}
