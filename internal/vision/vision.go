// Package vision is the HTTP client for the photo validation and image
// transform service.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/playperu/fieldquest/internal/puzzle"
)

// ErrUnavailable is returned by every call when no service URL is set.
var ErrUnavailable = errors.New("vision service not configured")

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    cfg.HTTPClient,
	}
}

func (c *Client) Configured() bool { return c.baseURL != "" }

type validateRequest struct {
	Image           []byte   `json:"image"`
	Title           string   `json:"title"`
	Instruction     string   `json:"instruction"`
	ReferenceImages []string `json:"referenceImages,omitempty"`
}

// Validate asks the service whether req's photo satisfies the puzzle
// instruction.
func (c *Client) Validate(ctx context.Context, req puzzle.PhotoRequest) (puzzle.Verdict, error) {
	var v puzzle.Verdict
	err := c.post(ctx, "/validate", validateRequest{
		Image:           req.Photo,
		Title:           req.Title,
		Instruction:     req.Instruction,
		ReferenceImages: req.References,
	}, &v)
	return v, err
}

type transformRequest struct {
	Image  []byte `json:"image"`
	Prompt string `json:"prompt"`
}

type transformResponse struct {
	Image []byte `json:"image"`
}

// Transform returns a restyled copy of photo.
func (c *Client) Transform(ctx context.Context, photo []byte, prompt string) ([]byte, error) {
	var resp transformResponse
	if err := c.post(ctx, "/transform", transformRequest{Image: photo, Prompt: prompt}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Image) == 0 {
		return nil, errors.New("vision: transform returned no image")
	}
	return resp.Image, nil
}

// Ping checks the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("vision: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vision: ping: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision: ping status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if !c.Configured() {
		return ErrUnavailable
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("vision: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vision: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vision: %s status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("vision: decode %s response: %w", path, err)
	}
	return nil
}
