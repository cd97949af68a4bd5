// Package vision asks a multimodal model served by Ollama to describe a
// captured frame.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/papercomputeco/recall/pkg/extract"
)

const (
	DefaultModel   = "llava:7b"
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 60 * time.Second

	// MaxEdge is the longest side, in pixels, of the image sent to the model.
	MaxEdge = 1024

	jpegQuality = 85

	describePrompt = "Describe this screenshot concisely. What app/website is shown? What is the user doing? Any important text visible?"
)

// Config configures a Describer.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Describer calls Ollama's /api/generate with a single image.
// Each Describer owns its HTTP client.
type Describer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// NewDescriber returns a Describer with defaults applied.
func NewDescriber(c Config) *Describer {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return &Describer{
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		model:      c.Model,
		httpClient: &http.Client{Timeout: c.Timeout},
	}
}

// Describe returns the model's description of img.
func (d *Describer) Describe(ctx context.Context, img image.Image) (string, error) {
	encoded, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(generateRequest{
		Model:  d.model,
		Prompt: describePrompt,
		Images: []string{encoded},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send vision request: %v", extract.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: ollama status %d: %s", extract.ErrUnavailable, resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", fmt.Errorf("%w: empty vision response", extract.ErrUnavailable)
	}
	return text, nil
}

// Downscale shrinks img so its longest side is at most MaxEdge, keeping the
// aspect ratio. Smaller images are returned unchanged.
func Downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= MaxEdge && h <= MaxEdge {
		return img
	}

	nw, nh := MaxEdge, max(1, h*MaxEdge/w)
	if h > w {
		nw, nh = max(1, w*MaxEdge/h), MaxEdge
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeJPEG downscales img and returns it as base64 JPEG.
func EncodeJPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Downscale(img), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

var _ extract.Describer = (*Describer)(nil)
