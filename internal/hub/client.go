package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPageSize  = 100
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "ogd-harvester"
)

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithPageSize(pageSize int) Option {
	return func(c *Client) {
		c.pageSize = pageSize
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// Client reads the full dataset catalogue from the hub harvest feed.
// The feed is DCAT RDF/XML, paginated with skip/limit parameters.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	url        string
	pageSize   int
	userAgent  string
}

func New(feedURL string, opts ...Option) *Client {
	c := &Client{
		logger:    zap.NewNop(),
		url:       feedURL,
		pageSize:  defaultPageSize,
		userAgent: defaultUserAgent,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return c
}

// Fetch retrieves every dataset record in the catalogue. Pagination
// stops at the first page that yields no datasets.
func (c *Client) Fetch(ctx context.Context) ([]Dataset, error) {
	var all []Dataset

	for skip := 0; ; skip += c.pageSize {
		page, err := c.fetchPage(ctx, skip)
		if err != nil {
			return nil, err
		}

		if len(page) == 0 {
			break
		}

		c.logger.Debug("fetched catalogue page",
			zap.Int("skip", skip),
			zap.Int("datasets", len(page)),
		)

		all = append(all, page...)
	}

	c.logger.Info("catalogue fetched", zap.Int("datasets", len(all)))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, skip int) ([]Dataset, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("hub: unexpected status %d fetching %s: %s", resp.StatusCode, u, body)
	}

	return ParseCatalogue(resp.Body)
}
