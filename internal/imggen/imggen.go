// Package imggen provides image generation providers and cost estimation.
package imggen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error categories for provider operations.
var (
	// ErrUnsupportedModel indicates the requested model maps to no provider.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrMissingAPIKey indicates no usable provider key was available.
	ErrMissingAPIKey = errors.New("missing provider API key")

	// ErrModerated indicates the upstream provider rejected the prompt or
	// image on content policy grounds.
	ErrModerated = errors.New("content policy rejection")

	// ErrEditUnsupported indicates the model cannot edit images.
	ErrEditUnsupported = errors.New("model does not support image editing")
)

// DefaultModel is used when a request omits the model.
const DefaultModel = "gemini-2.5-flash"

// Request is a provider-agnostic generation request.
type Request struct {
	Prompt            string
	Model             string
	N                 int
	Size              string
	Quality           string
	Background        string
	Moderation        string
	OutputCompression *int
	OutputFormat      string
	PartialImages     *int
	User              string

	// APIKey overrides the provider's server key when set. Self-hosted
	// deployments require it.
	APIKey string
}

// EditRequest extends Request with source images.
type EditRequest struct {
	Request

	// Images are base64-encoded source images, optionally carrying a
	// data-URL prefix.
	Images        []string
	Mask          string
	InputFidelity string
}

// Image is one generated image.
type Image struct {
	Data   []byte
	Format string
}

// Usage is token-level telemetry reported by the provider.
type Usage struct {
	TextTokens   int `json:"text_tokens"`
	ImageTokens  int `json:"image_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the provider-agnostic result of a generation or edit.
type Response struct {
	Images         []Image
	Usage          *Usage
	RevisedPrompts []string
}

// Features describes what a provider supports.
type Features struct {
	SupportsEdit            bool `json:"supports_edit"`
	SupportsMask            bool `json:"supports_mask"`
	SupportsSize            bool `json:"supports_size"`
	SupportsQuality         bool `json:"supports_quality"`
	SupportsBackground      bool `json:"supports_background"`
	SupportsModeration      bool `json:"supports_moderation"`
	SupportsMultipleOutputs bool `json:"supports_multiple_outputs"`
	MaxOutputs              int  `json:"max_outputs"`

	// SimplifiedCost marks providers without token telemetry; their
	// estimate is also the final cost.
	SimplifiedCost bool `json:"simplified_cost"`
}

// Provider generates images for one upstream backend.
type Provider interface {
	Name() string
	Features() Features
	Generate(ctx context.Context, req *Request) (*Response, error)
	Edit(ctx context.Context, req *EditRequest) (*Response, error)
}

// applyDefaults fills the request fields every provider relies on.
func (r *Request) applyDefaults() {
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.N <= 0 {
		r.N = 1
	}
	if r.Size == "" {
		r.Size = "1024x1024"
	}
	if r.Quality == "" {
		r.Quality = "auto"
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "png"
	}
}

// Validate rejects requests no provider could serve.
func (r *Request) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if r.N < 0 || r.N > 10 {
		return fmt.Errorf("n must be between 1 and 10, got %d", r.N)
	}
	return nil
}

// MaxSourceImageBytes caps each decoded source image at 50 MiB.
const MaxSourceImageBytes = 50 << 20

// Validate rejects edit requests before any upstream work happens.
// The size check uses the base64 length; decoding waits until dispatch.
func (r *EditRequest) Validate() error {
	if len(r.Images) == 0 {
		return fmt.Errorf("at least one source image is required")
	}
	for i, img := range r.Images {
		if comma := strings.IndexByte(img, ','); comma >= 0 && strings.HasPrefix(img, "data:") {
			img = img[comma+1:]
		}
		if len(img)/4*3 > MaxSourceImageBytes {
			return fmt.Errorf("image %d exceeds the 50MiB limit", i)
		}
	}
	return nil
}
