// Package notion implements core.TaskStore on top of the Notion API through
// the jomei/notionapi client.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// rateLimitRetries is how many 429 responses notionapi absorbs itself,
// honouring Retry-After, before the error reaches the retry policy.
const rateLimitRetries = 2

// Client talks to one Notion database. It is safe for concurrent use.
type Client struct {
	api        *notionapi.Client
	databaseID notionapi.DatabaseID
	props      models.NotionPropertyConf
	retry      core.RetryPolicy
	log        *logging.Logger

	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client whose transport carries requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p core.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the client's logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log.WithComponent("notion")
		}
	}
}

// New creates a Client from cfg. It does not contact Notion.
func New(cfg models.NotionConfig, opts ...Option) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: NOTION_TOKEN environment variable is required", core.ErrConfiguration)
	}
	if cfg.DatabaseID == "" {
		return nil, fmt.Errorf("%w: NOTION_DATABASE_ID environment variable is required", core.ErrConfiguration)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = core.DefaultNotionBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: notion.base_url %q is not an absolute URL", core.ErrConfiguration, baseURL)
	}
	version := cfg.Version
	if version == "" {
		version = core.DefaultNotionVersion
	}

	c := &Client{
		databaseID: notionapi.DatabaseID(cfg.DatabaseID),
		props:      cfg.Properties,
		retry:      core.DefaultRetryPolicy(),
		log:        logging.Nop(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	hc.Transport = &baseURLTransport{base: base, next: hc.Transport}
	c.api = notionapi.NewClient(notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(&hc),
		notionapi.WithVersion(version),
		notionapi.WithRetry(rateLimitRetries),
	)
	return c, nil
}

// baseURLTransport sends notionapi's requests, which always target
// api.notion.com/v1, to the configured base URL instead.
type baseURLTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.URL.Path = t.base.Path + strings.TrimPrefix(req.URL.Path, "/v1")
	r.URL.RawPath = ""
	r.Host = t.base.Host

	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}

// classify turns a notionapi failure into a *core.StoreError.
func (c *Client) classify(ctx context.Context, op string, err error) error {
	var se *core.StoreError
	if errors.As(err, &se) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.NewStoreError(core.KindTransient, op, ctxErr)
	}

	var rateErr *notionapi.RateLimitedError
	if errors.As(err, &rateErr) {
		return core.NewStoreError(core.KindTransient, op, fmt.Errorf("notion rate limit: %w", err))
	}

	var apiErr *notionapi.Error
	if !errors.As(err, &apiErr) {
		return core.NewStoreError(core.KindTransient, op, err)
	}
	kind := kindForStatus(apiErr.Status)
	c.log.Debug().
		Str("op", op).
		Int("status", apiErr.Status).
		Str("code", string(apiErr.Code)).
		Str("kind", kind.String()).
		Msg("notion request failed")
	return core.NewStoreError(kind, op,
		fmt.Errorf("notion returned %d %s: %s", apiErr.Status, apiErr.Code, apiErr.Message))
}

func kindForStatus(status int) core.ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return core.KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.KindConfiguration
	case status == http.StatusTooManyRequests || status == http.StatusConflict || status >= 500:
		return core.KindTransient
	default:
		return core.KindValidation
	}
}

// call runs fn under the client's retry policy. Errors from fn are
// classified before the policy sees them so only transient ones are retried.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		err = c.classify(ctx, op, err)
		if core.IsTransient(err) {
			c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient notion failure")
		}
		return err
	})
	if err != nil {
		var se *core.StoreError
		if errors.As(err, &se) {
			return err
		}
		return core.NewStoreError(core.KindTransient, op, err)
	}
	return nil
}
