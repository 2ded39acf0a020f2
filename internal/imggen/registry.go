package imggen

import (
	"fmt"
	"log/slog"

	"github.com/guitaripod/pixie/internal/config"
)

// Registry maps model names to providers.
type Registry struct {
	providers map[string]Provider
	byModel   map[string]string
	logger    *slog.Logger
}

// NewRegistry creates a registry with all supported providers wired to the
// deployment's server keys.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		byModel:   make(map[string]string),
		logger:    logger,
	}

	r.register(NewOpenAIProvider(cfg.OpenAIAPIKey, logger), "gpt-image-1")
	r.register(NewGeminiProvider(cfg.GeminiAPIKey, logger), "gemini-2.5-flash", "gemini-2.5-flash-image-preview")

	return r
}

func (r *Registry) register(p Provider, models ...string) {
	r.providers[p.Name()] = p
	for _, m := range models {
		r.byModel[m] = p.Name()
	}
}

// ForModel resolves the provider serving the given model. An empty model
// resolves to DefaultModel.
func (r *Registry) ForModel(model string) (Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	name, ok := r.byModel[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	return r.providers[name], nil
}

// Models returns every model the registry can serve.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.byModel))
	for m := range r.byModel {
		models = append(models, m)
	}
	return models
}
