package i14y

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultUserAgent = "ogd-harvester"
	defaultTimeout   = 30 * time.Second
	defaultPageSize  = 100
)

// APIError is a non-2xx response from the destination API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("i14y: status %d: %s", e.StatusCode, e.Body)
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithPageSize(pageSize int) Option {
	return func(c *Client) {
		c.pageSize = pageSize
	}
}

// WithBaseHTTPClient sets the transport used both for token requests
// and API calls. Tests point this at an httptest server.
func WithBaseHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.baseHTTPClient = httpClient
	}
}

// Client talks to the I14Y partner API. Authentication is OAuth2
// client credentials; the token source refreshes expired tokens
// transparently on every call.
type Client struct {
	logger         *zap.Logger
	baseURL        string
	organization   string
	userAgent      string
	pageSize       int
	baseHTTPClient *http.Client

	tokenSource oauth2.TokenSource
	httpClient  *http.Client
}

func New(baseURL, tokenURL, clientID, clientSecret, organization string, opts ...Option) *Client {
	c := &Client{
		logger:       zap.NewNop(),
		baseURL:      strings.TrimRight(baseURL, "/"),
		organization: organization,
		userAgent:    defaultUserAgent,
		pageSize:     defaultPageSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseHTTPClient == nil {
		c.baseHTTPClient = &http.Client{Timeout: defaultTimeout}
	}

	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.baseHTTPClient)
	c.tokenSource = creds.TokenSource(ctx)
	c.httpClient = oauth2.NewClient(ctx, c.tokenSource)

	return c
}

// Authenticate eagerly acquires a token. Called once at run start so
// credential failures abort before any destination mutation.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.tokenSource.Token(); err != nil {
		return fmt.Errorf("i14y: acquiring token: %w", err)
	}
	return nil
}

// CreateDataset registers a new dataset and returns its assigned id.
func (c *Client) CreateDataset(ctx context.Context, data any) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/datasets", nil, map[string]any{"data": data})
	if err != nil {
		return "", err
	}

	id := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if id == "" {
		return "", fmt.Errorf("i14y: create returned no dataset id")
	}

	c.logger.Debug("dataset created", zap.String("dataset_id", id))
	return id, nil
}

// UpdateDataset replaces an existing dataset record.
func (c *Client) UpdateDataset(ctx context.Context, datasetID string, data any) error {
	_, err := c.do(ctx, http.MethodPut, "/datasets/"+datasetID, nil, map[string]any{"data": data})
	return err
}

// DeleteDataset removes a dataset. Any attached structure is deleted
// first; a missing structure is not an error.
func (c *Client) DeleteDataset(ctx context.Context, datasetID string) error {
	if err := c.DeleteStructure(ctx, datasetID); err != nil {
		c.logger.Warn("deleting structure before dataset delete failed",
			zap.String("dataset_id", datasetID),
			zap.Error(err),
		)
	}

	_, err := c.do(ctx, http.MethodDelete, "/datasets/"+datasetID, nil, nil)
	return err
}

// SetPublicationLevel changes a dataset's publication level. The API
// rejects a no-op change; that answer is treated as success.
func (c *Client) SetPublicationLevel(ctx context.Context, datasetID, level string) error {
	q := url.Values{"level": {level}}
	_, err := c.do(ctx, http.MethodPut, "/datasets/"+datasetID+"/publication-level", q, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) &&
		strings.Contains(apiErr.Body, "already has its publication level set to") {
		return nil
	}
	return err
}

// SetRegistrationStatus changes a dataset's registration status.
func (c *Client) SetRegistrationStatus(ctx context.Context, datasetID, status string) error {
	q := url.Values{"status": {status}}
	_, err := c.do(ctx, http.MethodPut, "/datasets/"+datasetID+"/registration-status", q, nil)
	return err
}

// GetDataset fetches one dataset record with its distributions.
func (c *Client) GetDataset(ctx context.Context, datasetID string) (*Dataset, error) {
	body, err := c.do(ctx, http.MethodGet, "/datasets/"+datasetID, nil, nil)
	if err != nil {
		return nil, err
	}

	var env struct {
		Data Dataset `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("i14y: decoding dataset %s: %w", datasetID, err)
	}
	return &env.Data, nil
}

// ListDatasets pages through every dataset owned by the configured
// organisation.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var all []Dataset

	for page := 1; ; page++ {
		q := url.Values{
			"publisherIdentifier": {c.organization},
			"page":                {strconv.Itoa(page)},
			"pageSize":            {strconv.Itoa(c.pageSize)},
		}

		body, err := c.do(ctx, http.MethodGet, "/datasets", q, nil)
		if err != nil {
			return nil, err
		}

		var env struct {
			Data []Dataset `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("i14y: decoding dataset listing: %w", err)
		}

		if len(env.Data) == 0 {
			break
		}
		all = append(all, env.Data...)
	}

	return all, nil
}

// UploadStructure uploads a SHACL turtle document as the dataset's
// structure via the multipart import endpoint.
func (c *Client) UploadStructure(ctx context.Context, datasetID string, turtle []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "structure.ttl")
	if err != nil {
		return err
	}
	if _, err := part.Write(turtle); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	u := c.baseURL + "/datasets/" + datasetID + "/structures/imports"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// DeleteStructure removes a dataset's structure. 404 means there was
// nothing to delete, which is fine.
func (c *Client) DeleteStructure(ctx context.Context, datasetID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/datasets/"+datasetID+"/structures", nil, nil)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		bs, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bs)}
	}
	return bs, nil
}
