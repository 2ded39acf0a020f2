package imggen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider serves gpt-image-1 generations and edits.
type OpenAIProvider struct {
	serverKey  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIProvider creates an OpenAI provider. serverKey may be empty in
// self-hosted deployments where users supply their own keys.
func NewOpenAIProvider(serverKey string, logger *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		serverKey:  serverKey,
		baseURL:    openAIBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Features() Features {
	return Features{
		SupportsEdit:            true,
		SupportsMask:            true,
		SupportsSize:            true,
		SupportsQuality:         true,
		SupportsBackground:      true,
		SupportsModeration:      true,
		SupportsMultipleOutputs: true,
		MaxOutputs:              10,
	}
}

func (p *OpenAIProvider) resolveKey(reqKey string) (string, error) {
	if reqKey != "" {
		return reqKey, nil
	}
	if p.serverKey != "" {
		return p.serverKey, nil
	}
	return "", ErrMissingAPIKey
}

type openAIGenerationRequest struct {
	Prompt            string `json:"prompt"`
	Model             string `json:"model"`
	N                 int    `json:"n"`
	Size              string `json:"size"`
	Quality           string `json:"quality"`
	Background        string `json:"background,omitempty"`
	Moderation        string `json:"moderation,omitempty"`
	OutputCompression *int   `json:"output_compression,omitempty"`
	OutputFormat      string `json:"output_format"`
	PartialImages     *int   `json:"partial_images,omitempty"`
	Stream            bool   `json:"stream"`
	User              string `json:"user,omitempty"`
}

type openAIImageData struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type openAIResponse struct {
	Created int64             `json:"created"`
	Data    []openAIImageData `json:"data"`
	Usage   *struct {
		InputTokens        int `json:"input_tokens"`
		InputTokensDetails struct {
			TextTokens  int `json:"text_tokens"`
			ImageTokens int `json:"image_tokens"`
		} `json:"input_tokens_details"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	req.applyDefaults()

	apiKey, err := p.resolveKey(req.APIKey)
	if err != nil {
		return nil, err
	}

	payload := openAIGenerationRequest{
		Prompt:            req.Prompt,
		Model:             "gpt-image-1",
		N:                 req.N,
		Size:              req.Size,
		Quality:           req.Quality,
		Background:        req.Background,
		Moderation:        req.Moderation,
		OutputCompression: req.OutputCompression,
		OutputFormat:      req.OutputFormat,
		PartialImages:     req.PartialImages,
		User:              req.User,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	return p.do(ctx, httpReq)
}

func (p *OpenAIProvider) Edit(ctx context.Context, req *EditRequest) (*Response, error) {
	req.applyDefaults()

	apiKey, err := p.resolveKey(req.APIKey)
	if err != nil {
		return nil, err
	}
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("at least one source image is required")
	}

	boundary := "----WebKitFormBoundary" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("failed to set multipart boundary: %w", err)
	}

	imageField := "image"
	if len(req.Images) > 1 {
		imageField = "image[]"
	}
	for i, img := range req.Images {
		data, err := decodeBase64Image(img)
		if err != nil {
			return nil, fmt.Errorf("failed to decode source image %d: %w", i, err)
		}
		if err := writeFilePart(writer, imageField, fmt.Sprintf("image-%d.png", i), data); err != nil {
			return nil, err
		}
	}
	if req.Mask != "" {
		data, err := decodeBase64Image(req.Mask)
		if err != nil {
			return nil, fmt.Errorf("failed to decode mask: %w", err)
		}
		if err := writeFilePart(writer, "mask", "mask.png", data); err != nil {
			return nil, err
		}
	}

	fidelity := req.InputFidelity
	if fidelity == "" {
		fidelity = "medium"
	}

	fields := map[string]string{
		"prompt":         req.Prompt,
		"model":          "gpt-image-1",
		"n":              strconv.Itoa(req.N),
		"size":           req.Size,
		"quality":        req.Quality,
		"input_fidelity": fidelity,
		"output_format":  req.OutputFormat,
	}
	if req.Background != "" {
		fields["background"] = req.Background
	}
	if req.OutputCompression != nil {
		fields["output_compression"] = strconv.Itoa(*req.OutputCompression)
	}
	if req.PartialImages != nil {
		fields["partial_images"] = strconv.Itoa(*req.PartialImages)
	}
	if req.User != "" {
		fields["user"] = req.User
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build edit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	return p.do(ctx, httpReq)
}

func (p *OpenAIProvider) do(ctx context.Context, httpReq *http.Request) (*Response, error) {
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		_ = json.Unmarshal(body, &errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = string(body)
		}
		if strings.Contains(msg, "content_policy_violation") ||
			strings.Contains(errResp.Error.Code, "moderation") ||
			strings.Contains(msg, "moderation") {
			return nil, fmt.Errorf("%w: %s", ErrModerated, msg)
		}
		return nil, fmt.Errorf("openai returned %d: %s", resp.StatusCode, msg)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse openai response: %w", err)
	}

	out := &Response{}
	for _, d := range parsed.Data {
		switch {
		case d.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image payload: %w", err)
			}
			out.Images = append(out.Images, Image{Data: data, Format: "png"})
		case d.URL != "":
			data, err := p.fetchImage(ctx, d.URL)
			if err != nil {
				return nil, err
			}
			out.Images = append(out.Images, Image{Data: data, Format: "png"})
		}
		if d.RevisedPrompt != "" {
			out.RevisedPrompts = append(out.RevisedPrompts, d.RevisedPrompt)
		}
	}
	if parsed.Usage != nil {
		out.Usage = &Usage{
			TextTokens:   parsed.Usage.InputTokensDetails.TextTokens,
			ImageTokens:  parsed.Usage.InputTokensDetails.ImageTokens,
			OutputTokens: parsed.Usage.OutputTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (p *OpenAIProvider) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image fetch: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func writeFilePart(writer *multipart.Writer, field, filename string, data []byte) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create part %s: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write part %s: %w", field, err)
	}
	return nil
}

// decodeBase64Image strips an optional data-URL prefix and decodes.
func decodeBase64Image(s string) ([]byte, error) {
	for _, prefix := range []string{
		"data:image/png;base64,",
		"data:image/jpeg;base64,",
		"data:image/jpg;base64,",
	} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
