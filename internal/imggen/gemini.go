package imggen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider serves Gemini image generation via generateContent.
// Gemini reports no token telemetry for image output, so its costs are
// flat: the estimate is also the final charge.
type GeminiProvider struct {
	serverKey  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(serverKey string, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		serverKey:  serverKey,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Features() Features {
	return Features{
		SupportsEdit:            true,
		SupportsMask:            false,
		SupportsSize:            false,
		SupportsQuality:         false,
		SupportsBackground:      false,
		SupportsModeration:      false,
		SupportsMultipleOutputs: true,
		MaxOutputs:              4,
		SimplifiedCost:          true,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		CandidateCount     int      `json:"candidateCount,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	req.applyDefaults()
	return p.generateContent(ctx, req, nil)
}

func (p *GeminiProvider) Edit(ctx context.Context, req *EditRequest) (*Response, error) {
	req.applyDefaults()
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("at least one source image is required")
	}
	return p.generateContent(ctx, &req.Request, req.Images)
}

func (p *GeminiProvider) generateContent(ctx context.Context, req *Request, sourceImages []string) (*Response, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = p.serverKey
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var payload geminiRequest
	parts := []geminiPart{{Text: req.Prompt}}
	for i, img := range sourceImages {
		data, err := decodeBase64Image(img)
		if err != nil {
			return nil, fmt.Errorf("failed to decode source image %d: %w", i, err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}
	payload.Contents = append(payload.Contents, struct {
		Parts []geminiPart `json:"parts"`
	}{Parts: parts})
	payload.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}
	if req.N > 1 {
		payload.GenerationConfig.CandidateCount = req.N
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = string(respBody)
		}
		if strings.Contains(strings.ToLower(msg), "safety") ||
			strings.Contains(strings.ToLower(msg), "blocked") {
			return nil, fmt.Errorf("%w: %s", ErrModerated, msg)
		}
		return nil, fmt.Errorf("gemini returned %d: %s", resp.StatusCode, msg)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse gemini response: %w", err)
	}

	out := &Response{}
	for _, cand := range parsed.Candidates {
		if cand.FinishReason == "SAFETY" {
			return nil, fmt.Errorf("%w: candidate blocked by safety filters", ErrModerated)
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image payload: %w", err)
			}
			format := "png"
			if strings.Contains(part.InlineData.MimeType, "jpeg") {
				format = "jpeg"
			}
			out.Images = append(out.Images, Image{Data: data, Format: format})
		}
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("gemini returned no images")
	}
	return out, nil
}
