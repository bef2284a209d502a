package elliptic

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "c2VjcmV0LWtleQ==" // base64("secret-key")

func newTestClient(t *testing.T, serverURL string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test-key",
		APISecret:  testSecret,
		BaseURL:    serverURL + "/v2/wallet/synchronous",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsBadSecret(t *testing.T) {
	_, err := NewClient(Options{APISecret: "not base64!!!", BaseURL: "https://example.com/v2/wallet/synchronous"})
	assert.Error(t, err)
}

func TestNewClientRejectsPathlessURL(t *testing.T) {
	_, err := NewClient(Options{APISecret: testSecret, BaseURL: "https://example.com"})
	assert.Error(t, err)
}

func TestAnalyzeWalletSignsRequest(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		_, _ = w.Write([]byte(`{"risk_score": 1.5}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	_, err := client.AnalyzeWallet(context.Background(), "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "wallet_exposure", payload["type"])
	subject := payload["subject"].(map[string]any)
	assert.Equal(t, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", subject["hash"])
	assert.Equal(t, "address", subject["type"])
	assert.Equal(t, "holistic", subject["asset"])
	assert.Equal(t, "holistic", subject["blockchain"])

	assert.Equal(t, "test-key", gotHeaders.Get("x-access-key"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))

	// Recompute the signature from the observed timestamp and body.
	timestamp := gotHeaders.Get("x-access-timestamp")
	require.NotEmpty(t, timestamp)
	secret, err := base64.StdEncoding.DecodeString(testSecret)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + "POST" + "/v2/wallet/synchronous"))
	mac.Write(gotBody)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotHeaders.Get("x-access-sign"))
}

func TestAnalyzeWalletDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"risk_score": 4.2,
			"evaluation_detail": {
				"source": [{
					"matched_elements": [{
						"category_id": "9",
						"contributions": [{
							"min_number_of_hops": 2,
							"indirect_percentage": 12.345,
							"risk_triggers": {"country": ["IR", "KP"]}
						}]
					}]
				}],
				"destination": []
			},
			"blockchain_info": {
				"cluster": {
					"inflow_value": {"usd": 1500.5},
					"outflow_value": {"usd": 300.25}
				}
			}
		}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	analysis, err := client.AnalyzeWallet(context.Background(), "addr")
	require.NoError(t, err)

	require.NotNil(t, analysis.Assessment.RiskScore)
	assert.Equal(t, 4.2, *analysis.Assessment.RiskScore)
	require.Len(t, analysis.Assessment.Source, 1)
	elem := analysis.Assessment.Source[0].MatchedElements[0]
	assert.Equal(t, "9", elem.CategoryID)
	require.Len(t, elem.Contributions, 1)
	require.NotNil(t, elem.Contributions[0].MinHops)
	assert.Equal(t, 2, *elem.Contributions[0].MinHops)
	assert.Equal(t, 12.345, elem.Contributions[0].IndirectPercentage)
	assert.Equal(t, []string{"IR", "KP"}, elem.Contributions[0].Countries)

	assert.Equal(t, 1500.5, analysis.Financial.InflowUSD)
	assert.Equal(t, 300.25, analysis.Financial.OutflowUSD)
	assert.Equal(t, 1200.25, analysis.Financial.BalanceUSD)
}

func TestAnalyzeWalletMissingRiskScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	analysis, err := client.AnalyzeWallet(context.Background(), "addr")
	require.NoError(t, err)
	assert.Nil(t, analysis.Assessment.RiskScore)
	assert.Empty(t, analysis.Assessment.Source)
}

func TestAnalyzeWalletAuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	_, err := client.AnalyzeWallet(context.Background(), "addr")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAuth, apiErr.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyzeWalletRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"risk_score": 1.0}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	analysis, err := client.AnalyzeWallet(context.Background(), "addr")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, *analysis.Assessment.RiskScore)
}

func TestAnalyzeWalletServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	_, err := client.AnalyzeWallet(context.Background(), "addr")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindServer, apiErr.Kind)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnalyzeWalletMalformedResponseNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	_, err := client.AnalyzeWallet(context.Background(), "addr")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindMalformed, apiErr.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyzeWalletConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := newTestClient(t, srv.URL, 2)
	_, err := client.AnalyzeWallet(context.Background(), "addr")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindConnection, apiErr.Kind)
}
