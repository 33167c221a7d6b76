// Package genai defines the contracts for the external generation and
// embedding capabilities the pipeline consumes, plus a reference HTTP
// client. The capabilities are treated as unreliable and rate-limited:
// callers bound retries and insert delays between calls.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"time"
)

// ErrExternalAPI wraps failures of the generation capabilities. Callers
// log and substitute a placeholder for the failed sub-item while letting
// sibling fan-out tasks continue.
var ErrExternalAPI = errors.New("external generation API failure")

// TextGenerator produces text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator produces raster image bytes for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, error)
}

// Embedder maps text and images into a shared embedding space.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched
// or zero-length input.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DecodeImage decodes generated raster bytes and returns both the image
// and a data URI suitable for embedding in SVG output.
func DecodeImage(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decoding generated image: %v", ErrExternalAPI, err)
	}
	uri := "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(raw)
	return img, uri, nil
}

// Client is a reference HTTP implementation of the generation and
// embedding contracts against a single JSON endpoint.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
	// MaxRetries bounds retry attempts per call; RetryDelay is also the
	// pacing delay inserted between sibling calls.
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient builds a client with the conventional bounds.
func NewClient(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}
}

// GenerateText implements TextGenerator.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	req := map[string]interface{}{"task": "text", "prompt": prompt}
	if err := c.post(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", fmt.Errorf("%w: empty text response", ErrExternalAPI)
	}
	return resp.Text, nil
}

// GenerateImage implements ImageGenerator.
func (c *Client) GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	var resp struct {
		ImageB64 string `json:"image_b64"`
	}
	req := map[string]interface{}{"task": "image", "prompt": prompt, "width": width, "height": height}
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(resp.ImageB64)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: malformed image payload", ErrExternalAPI)
	}
	return raw, nil
}

// EmbedText implements Embedder.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, map[string]interface{}{"task": "embed_text", "text": text})
}

// EmbedImage implements Embedder.
func (c *Client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return c.embed(ctx, map[string]interface{}{
		"task":      "embed_image",
		"image_b64": base64.StdEncoding.EncodeToString(image),
	})
}

func (c *Client) embed(ctx context.Context, req map[string]interface{}) ([]float32, error) {
	var resp struct {
		Vector []float32 `json:"vector"`
	}
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrExternalAPI)
	}
	return resp.Vector, nil
}

// post sends one JSON request with bounded retries.
func (c *Client) post(ctx context.Context, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			lastErr = fmt.Errorf("decoding response: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrExternalAPI, lastErr)
}
