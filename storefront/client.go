// Package storefront is the REST client for the shop backend together with
// the query keys, queries and mutations built on it.
package storefront

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/query"
	"github.com/cockroachdb/errors"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

// Client talks JSON to the storefront API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// Error is returned for every failed request. It carries the HTTP status so
// that query.Classify can tell auth, client and transient failures apart.
type Error struct {
	URL     string
	Method  string
	Status  int
	Body    string
	Err     error
	TraceID string
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status, or zero when no response arrived.
func (e *Error) StatusCode() int { return e.Status }

func NewError(url, method string, status int, body string, err error, traceID string) *Error {
	return &Error{
		URL:     url,
		Method:  method,
		Status:  status,
		Body:    body,
		Err:     err,
		TraceID: traceID,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client = &http.Client{Timeout: d, Transport: c.client.Transport} }
}

func New(log logger.Logger, baseURL, token string, opts ...Option) *Client {
	c := &Client{
		logger:  log.WithPrefix("[storefront]"),
		baseURL: baseURL,
		token:   token,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Issues  []struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Path    []string `json:"path"`
	} `json:"issues"`
}

func (r errorResponse) err() error {
	if len(r.Issues) > 0 {
		var msgs []string
		for _, issue := range r.Issues {
			msg := fmt.Sprintf("%s (%s)", issue.Message, issue.Code)
			if issue.Path != nil {
				msg = msg + " " + strings.Join(issue.Path, ".")
			}
			msgs = append(msgs, msg)
		}
		return errors.Newf("%s", strings.Join(msgs, ". "))
	}
	if r.Message != "" {
		return errors.Newf("%s", r.Message)
	}
	return nil
}

func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "Storefront Client/" + Version + " (" + gitSHA + ")"
}

// bodyPreview shortens a response body for logging and hides anything that
// is not text.
func bodyPreview(body []byte, contentType string, maxChars int) string {
	ct := strings.ToLower(contentType)
	if ct != "" && !strings.Contains(ct, "json") && !strings.HasPrefix(ct, "text/") {
		hash := sha256.Sum256(body)
		return fmt.Sprintf("<%d bytes, sha256=%s>", len(body), hex.EncodeToString(hash[:8]))
	}
	if len(body) > maxChars {
		return string(body[:maxChars]) + fmt.Sprintf("[truncated, total: %d chars]", len(body))
	}
	return string(body)
}

func (c *Client) resolve(pathParam string) (*url.URL, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	if i := strings.Index(pathParam, "?"); i != -1 {
		u.RawQuery = pathParam[i+1:]
		pathParam = pathParam[:i]
	}
	switch {
	case pathParam == "":
	case u.Path == "" || u.Path == "/":
		u.Path = pathParam
	default:
		u.Path = path.Join(u.Path, pathParam)
	}
	return u, nil
}

// Do sends a JSON request and decodes the response into response when it
// is not nil. Connection failures are marked query.ErrNetwork; retrying is
// left to the caller.
func (c *Client) Do(ctx context.Context, method, pathParam string, payload any, response any) error {
	var traceID string

	u, err := c.resolve(pathParam)
	if err != nil {
		return NewError(c.baseURL, method, 0, "", query.MarkClient(errors.Wrap(err, "error parsing url")), traceID)
	}
	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return NewError(u.String(), method, 0, "", query.MarkClient(errors.Wrap(err, "error marshalling payload")), traceID)
		}
	}
	c.logger.Trace("sending request: %s %s", method, u.String())

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return NewError(u.String(), method, 0, "", query.MarkClient(errors.Wrap(err, "error creating request")), traceID)
	}
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return NewError(u.String(), method, 0, "", query.MarkNetwork(errors.Wrap(err, "error sending request")), traceID)
	}
	defer resp.Body.Close()
	c.logger.Debug("response status: %s", resp.Status)
	traceID = resp.Header.Get("traceparent")

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewError(u.String(), method, resp.StatusCode, "", query.MarkNetwork(errors.Wrap(err, "error reading response body")), traceID)
	}
	contentType := resp.Header.Get("Content-Type")
	c.logger.Trace("response body: %s", bodyPreview(respBody, contentType, 200))

	if resp.StatusCode > 299 {
		var apiErr errorResponse
		if strings.Contains(contentType, "application/json") && json.Unmarshal(respBody, &apiErr) == nil {
			if err := apiErr.err(); err != nil {
				return NewError(u.String(), method, resp.StatusCode, string(respBody), err, traceID)
			}
		}
		return NewError(u.String(), method, resp.StatusCode, string(respBody), errors.Newf("request failed with status (%s)", resp.Status), traceID)
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return NewError(u.String(), method, resp.StatusCode, string(respBody), errors.Wrap(err, "error JSON decoding response"), traceID)
		}
	}
	return nil
}
