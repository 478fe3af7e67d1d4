// Package clients provides the authenticated Sailthru API client with
// retry, rate limiting and response classification
package clients

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/tapstream-io/tap-sailthru/pkg/config"
	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
	"github.com/tapstream-io/tap-sailthru/pkg/logger"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
)

// DefaultBaseURL is the Sailthru API endpoint
const DefaultBaseURL = "https://api.sailthru.com"

// sailthruCode99 marks two distinct conditions depending on the HTTP
// status: on 400 the requested stats are not ready yet (retryable), on
// 403 the blast may not be exported (skippable, not an error).
const sailthruCode99 = 99

// SailthruClient issues signed requests against the Sailthru API.
// It does not itself retry; the embedded RetryPolicy is applied around
// each logical call.
type SailthruClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	userAgent  string
	httpClient *http.Client
	retry      *RetryPolicy
	limiter    RateLimiter
	logger     *zap.Logger
}

// apiError is the error envelope Sailthru returns on non-200 responses
type apiError struct {
	Error    int    `json:"error"`
	ErrorMsg string `json:"errormsg"`
}

// NewSailthruClient creates a client from the tap configuration
func NewSailthruClient(cfg *config.Config) *SailthruClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}

	limiter := RateLimiter(NewNoopRateLimiter())
	if cfg.RateLimitPerSec > 0 {
		limiter = NewTokenBucketRateLimiter(cfg.RateLimitPerSec, int(cfg.RateLimitPerSec)+1)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}

	return &SailthruClient{
		baseURL:   DefaultBaseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		retry:   NewRetryPolicy(cfg.Retry),
		limiter: limiter,
		logger:  logger.Get().With(zap.String("component", "sailthru_client")),
	}
}

// SetBaseURL overrides the API endpoint; used by tests
func (c *SailthruClient) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// CheckPlatformAccess verifies the configured credentials with a
// lightweight authenticated call, failing fast on bad credentials
func (c *SailthruClient) CheckPlatformAccess(ctx context.Context) error {
	var out map[string]interface{}
	if err := c.Get(ctx, "/settings", nil, &out); err != nil {
		if errors.IsType(err, errors.ErrorTypeAuthentication) {
			return err
		}
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "credential check failed")
	}
	return nil
}

// Get issues a signed GET request and decodes the JSON response into out
func (c *SailthruClient) Get(ctx context.Context, endpoint string, params interface{}, out interface{}) error {
	return c.request(ctx, http.MethodGet, endpoint, params, out)
}

// Post issues a signed POST request and decodes the JSON response into out
func (c *SailthruClient) Post(ctx context.Context, endpoint string, params interface{}, out interface{}) error {
	return c.request(ctx, http.MethodPost, endpoint, params, out)
}

// request applies rate limiting and the retry policy around one logical call
func (c *SailthruClient) request(ctx context.Context, method, endpoint string, params interface{}, out interface{}) error {
	payload, err := c.preparePayload(params)
	if err != nil {
		return err
	}

	return c.retry.Execute(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "rate limiter wait interrupted")
		}
		return c.doRequest(ctx, method, endpoint, payload, out)
	})
}

// doRequest performs a single HTTP exchange and classifies the outcome
func (c *SailthruClient) doRequest(ctx context.Context, method, endpoint string, payload url.Values, out interface{}) error {
	var (
		req *http.Request
		err error
	)

	fullURL := c.baseURL + endpoint
	switch method {
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, method, fullURL,
			strings.NewReader(payload.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		req, err = http.NewRequestWithContext(ctx, method,
			fullURL+"?"+payload.Encode(), nil)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	timer := metrics.NewHTTPTimer(endpoint, method)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		timer.Stop("error")
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	timer.Stop(strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyStatus(resp, body, endpoint, out)
	}

	if out == nil {
		return nil
	}
	if err := jsonpool.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode API response")
	}
	return nil
}

// classifyStatus maps non-200 responses onto the error taxonomy.
// Sailthru reports a numeric error code and message in the body; both
// are attached as details for the operator.
func (c *SailthruClient) classifyStatus(resp *http.Response, body []byte, endpoint string, out interface{}) error {
	var envelope apiError
	// Body may not be JSON on proxy-level failures
	_ = jsonpool.Unmarshal(body, &envelope)

	status := resp.StatusCode

	// A 403 with code 99 means the resource may not be exported. The
	// caller decides to skip, so hand back the decoded body instead of
	// an error.
	if status == http.StatusForbidden && envelope.Error == sailthruCode99 {
		c.logger.Warn("export forbidden for resource",
			zap.String("endpoint", endpoint),
			zap.String("errormsg", envelope.ErrorMsg))
		if out != nil {
			if err := jsonpool.Unmarshal(body, out); err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "failed to decode API response")
			}
		}
		return nil
	}

	var errType errors.ErrorType
	switch {
	case status == http.StatusBadRequest && envelope.Error == sailthruCode99:
		errType = errors.ErrorTypeStatsNotReady
	case status == http.StatusBadRequest:
		errType = errors.ErrorTypeBadRequest
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case status == http.StatusNotFound, status == http.StatusMethodNotAllowed:
		errType = errors.ErrorTypeNotFound
	case status == http.StatusConflict:
		errType = errors.ErrorTypeConflict
	case status == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case status >= 500:
		errType = errors.ErrorTypeServer
	default:
		errType = errors.ErrorTypeBadRequest
	}

	msg := envelope.ErrorMsg
	if msg == "" {
		msg = http.StatusText(status)
	}

	e := errors.Newf(errType, "HTTP %d from %s: %s", status, endpoint, msg).
		WithDetail("status_code", status).
		WithDetail("sailthru_code", envelope.Error)

	if errType == errors.ErrorTypeRateLimit {
		// Sailthru reports the wait before the limit resets in this header
		if v := resp.Header.Get("X-Rate-Limit-Remaining"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				c.logger.Info("API rate limit exceeded",
					zap.Float64("retry_after_seconds", secs))
				e = e.WithDetail(RetryAfterDetail, secs)
			}
		}
	}

	return e
}

// classifyTransportError maps transport failures onto the taxonomy
func classifyTransportError(err error) error {
	if isTimeout(err) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; e = unwrap(e) {
		if t, ok := e.(timeout); ok && t.Timeout() {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// Download streams the body of an export URL. Export downloads are
// plain unsigned GETs; gzip responses are decoded transparently.
func (c *SailthruClient) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var rc io.ReadCloser

	err := c.retry.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create download request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept-Encoding", "gzip")

		timer := metrics.NewHTTPTimer("export_download", http.MethodGet)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			timer.Stop("error")
			return classifyTransportError(err)
		}
		timer.Stop(strconv.Itoa(resp.StatusCode))

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if resp.StatusCode >= 500 {
				return errors.Newf(errors.ErrorTypeServer,
					"export download returned HTTP %d", resp.StatusCode)
			}
			return errors.Newf(errors.ErrorTypeData,
				"export download returned HTTP %d", resp.StatusCode)
		}

		if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(resp.Body)
			if err != nil {
				resp.Body.Close()
				return errors.Wrap(err, errors.ErrorTypeData, "failed to open gzip export")
			}
			rc = &gzipReadCloser{gz: gz, body: resp.Body}
			return nil
		}

		rc = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// gzipReadCloser closes both the gzip layer and the underlying body
type gzipReadCloser struct {
	gz   *gzip.Reader
	body io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	bodyErr := g.body.Close()
	if gzErr != nil {
		return gzErr
	}
	return bodyErr
}

// preparePayload assembles the signed request parameters. The payload
// carries the key, a JSON encoding of the call parameters, and an MD5
// signature of the secret concatenated with the sorted parameter values.
func (c *SailthruClient) preparePayload(params interface{}) (url.Values, error) {
	if params == nil {
		params = map[string]interface{}{}
	}

	encoded, err := jsonpool.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode request parameters")
	}

	payload := map[string]interface{}{
		"api_key": c.apiKey,
		"format":  "json",
		"json":    string(encoded),
	}

	sig := signatureHash(payload, c.apiSecret)

	values := url.Values{}
	values.Set("api_key", c.apiKey)
	values.Set("format", "json")
	values.Set("json", string(encoded))
	values.Set("sig", sig)
	return values, nil
}

// signatureHash returns the MD5 hex digest of the signature string
func signatureHash(params interface{}, secret string) string {
	values := extractParams(params)
	strs := make([]string, 0, len(values))
	for _, v := range values {
		strs = append(strs, stringify(v))
	}
	sort.Strings(strs)

	sum := md5.Sum([]byte(secret + strings.Join(strs, "")))
	return hex.EncodeToString(sum[:])
}

// extractParams collects leaf values, recursing into maps and slices
func extractParams(params interface{}) []interface{} {
	var values []interface{}
	switch p := params.(type) {
	case map[string]interface{}:
		for _, v := range p {
			values = append(values, extractParams(v)...)
		}
	case map[string]string:
		for _, v := range p {
			values = append(values, v)
		}
	case []interface{}:
		for _, v := range p {
			values = append(values, extractParams(v)...)
		}
	case []string:
		for _, v := range p {
			values = append(values, v)
		}
	default:
		values = append(values, p)
	}
	return values
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// Avoid trailing zeros so the hash matches the server's view
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := jsonpool.Marshal(v)
		return string(b)
	}
}
