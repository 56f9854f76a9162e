// Package apiclient calls the backend REST API with the provider's current
// credentials.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/identity"
)

const maxResponseBytes = 8 << 20

type Client struct {
	baseURL  string
	provider identity.Provider
	http     *http.Client
	log      logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for baseURL. provider may be nil for calls that need
// no bearer token.
func New(baseURL string, provider identity.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		provider: provider,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// doJSON sends body as JSON and decodes the response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	raw, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.accessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}

	if resp.StatusCode < 400 {
		return raw, nil
	}
	herr := &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(raw), Body: raw}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.unauthorized(ctx, method, path, herr)
	}
	return nil, herr
}

// accessToken asks the provider, never cached state, for the bearer.
func (c *Client) accessToken(ctx context.Context) string {
	if c.provider == nil {
		return ""
	}
	s, err := c.provider.GetSession(ctx)
	if err != nil {
		c.log.WithError(err).Debug("no session for outgoing request")
		return ""
	}
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// unauthorized signs out only when the provider confirms there is no valid
// session. Otherwise the 401 is reported as transient and nothing changes.
func (c *Client) unauthorized(ctx context.Context, method, path string, herr *HTTPError) error {
	log := c.log.WithFields(logrus.Fields{"method": method, "path": path})
	if c.provider == nil {
		return herr
	}

	s, err := c.provider.GetSession(ctx)
	if err != nil {
		log.WithError(err).Warn("401 received and session state unknown, not signing out")
		return fmt.Errorf("%w: %w", ErrAuthorizationTransient, herr)
	}
	if s != nil && s.AccessToken != "" {
		log.WithField("error", herr.Message).Warn("401 received with a valid session, not signing out")
		return fmt.Errorf("%w: %w", ErrAuthorizationTransient, herr)
	}

	log.Info("401 received without a valid session, signing out")
	if err := c.provider.SignOut(ctx); err != nil {
		log.WithError(err).Warn("sign-out after 401 failed")
	}
	return herr
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	for _, m := range []string{body.Message, body.Detail, body.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}
