package imggen

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/guitaripod/pixie/internal/config"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := &config.Config{OpenAIAPIKey: "sk-test", GeminiAPIKey: "gm-test"}
	return NewRegistry(cfg, slog.Default())
}

func TestRegistry_ForModel(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		model    string
		provider string
	}{
		{"gpt-image-1", "openai"},
		{"gemini-2.5-flash", "gemini"},
		{"gemini-2.5-flash-image-preview", "gemini"},
		{"", "gemini"}, // default model
	}
	for _, tt := range tests {
		p, err := r.ForModel(tt.model)
		if err != nil {
			t.Fatalf("ForModel(%q) error = %v", tt.model, err)
		}
		if p.Name() != tt.provider {
			t.Errorf("ForModel(%q) = %s, want %s", tt.model, p.Name(), tt.provider)
		}
	}
}

func TestRegistry_UnknownModel(t *testing.T) {
	r := testRegistry(t)

	_, err := r.ForModel("dall-e-2")
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("ForModel(dall-e-2) error = %v, want ErrUnsupportedModel", err)
	}
}

func TestRegistry_Features(t *testing.T) {
	r := testRegistry(t)

	openai, _ := r.ForModel("gpt-image-1")
	if f := openai.Features(); !f.SupportsEdit || f.MaxOutputs != 10 || f.SimplifiedCost {
		t.Errorf("openai features = %+v", f)
	}

	gemini, _ := r.ForModel("gemini-2.5-flash")
	if f := gemini.Features(); !f.SupportsEdit || !f.SimplifiedCost || f.SupportsMask {
		t.Errorf("gemini features = %+v", f)
	}
}
