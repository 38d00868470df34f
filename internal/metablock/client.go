// Package metablock talks to the metablock routing API and keeps
// blocks in sync with their declared configuration.
package metablock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// userAgent identifies this tool on every API request.
const userAgent = "quantmind/rops"

// ErrMissingToken is returned when no API token is configured.
var ErrMissingToken = errors.New("METABLOCK_API_TOKEN not set - add it to your env or the .env file")

// APIError is a client-error response from the metablock API. The body
// is carried verbatim for diagnosis.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to %s - status %d: %s", e.Op, e.Status, e.Body)
}

// DecodeError is an API response body that could not be parsed into
// the expected record shape.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Client is a metablock API client scoped to one base URL and token.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient constructs a metablock client. The token is a hard
// precondition: no call is attempted without one.
func NewClient(logger *slog.Logger, baseURL, token string) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return &Client{
		logger:     logger,
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}, nil
}

// Apply reconciles the desired block configuration: the block is
// updated in place when one with the same name already exists in the
// target space, created otherwise. The block's own space wins over
// defaultSpace.
func (c *Client) Apply(ctx context.Context, defaultSpace string, cfg *BlockConfig) (*Block, error) {
	space := cfg.Space
	if space == "" {
		space = defaultSpace
	}
	existing, err := c.Lookup(ctx, space, cfg.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		c.logger.Info("block already exists, updating", "block", cfg.Name, "space", space)
		block, err := c.Update(ctx, existing.ID, cfg)
		if err != nil {
			return nil, err
		}
		c.logger.Info("block updated", "block", block.FullName)
		return block, nil
	}
	c.logger.Info("creating new block", "block", cfg.Name, "space", space)
	block, err := c.Create(ctx, space, cfg)
	if err != nil {
		return nil, err
	}
	c.logger.Info("block created", "block", block.FullName)
	return block, nil
}

// Lookup finds a block by name within a space. A nil block with a nil
// error means the block does not exist yet. When the API returns more
// than one match the first element is taken; ordering is left to the
// remote side.
func (c *Client) Lookup(ctx context.Context, spaceName, blockName string) (*Block, error) {
	endpoint := fmt.Sprintf("%s/v1/spaces/%s/blocks?name=%s", c.baseURL, spaceName, url.QueryEscape(blockName))
	c.logger.Info("fetching block information", "url", endpoint)

	var blocks []Block
	if err := c.send(ctx, http.MethodGet, endpoint, "fetch blocks", nil, &blocks); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return &blocks[0], nil
}

// Create creates a new block in the given space.
func (c *Client) Create(ctx context.Context, spaceName string, cfg *BlockConfig) (*Block, error) {
	endpoint := fmt.Sprintf("%s/v1/spaces/%s/blocks", c.baseURL, spaceName)
	var block Block
	if err := c.send(ctx, http.MethodPost, endpoint, "create block", cfg, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// Update replaces the state of an existing block. This is a full
// replace keyed by the remote-assigned id, not a merge.
func (c *Client) Update(ctx context.Context, blockID string, cfg *BlockConfig) (*Block, error) {
	endpoint := fmt.Sprintf("%s/v1/blocks/%s", c.baseURL, blockID)
	var block Block
	if err := c.send(ctx, http.MethodPatch, endpoint, "update block", cfg, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) send(ctx context.Context, method, endpoint, op string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-metablock-api-key", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &DecodeError{URL: endpoint, Err: err}
		}
	}
	return nil
}
