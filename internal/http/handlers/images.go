package handlers

import (
	"context"

	"github.com/guitaripod/pixie/internal/imggen"
	"github.com/guitaripod/pixie/internal/service"
)

// ImageHandler handles generation, edits and the gallery.
type ImageHandler struct {
	imageSvc *service.ImageService
}

// NewImageHandler creates a new image handler.
func NewImageHandler(imageSvc *service.ImageService) *ImageHandler {
	return &ImageHandler{imageSvc: imageSvc}
}

// GenerationRequest mirrors the OpenAI images generations body.
type GenerationRequest struct {
	Prompt            string `json:"prompt" doc:"Text description of the desired image"`
	Model             string `json:"model,omitempty" doc:"Model to use, defaults to gemini-2.5-flash"`
	N                 int    `json:"n,omitempty" minimum:"0" maximum:"10" doc:"Number of images to generate"`
	Size              string `json:"size,omitempty" doc:"Image dimensions, e.g. 1024x1024"`
	Quality           string `json:"quality,omitempty" doc:"low, medium, high or auto"`
	Background        string `json:"background,omitempty"`
	Moderation        string `json:"moderation,omitempty"`
	OutputCompression *int   `json:"output_compression,omitempty"`
	OutputFormat      string `json:"output_format,omitempty"`
	PartialImages     *int   `json:"partial_images,omitempty"`
	Stream            bool   `json:"stream,omitempty"`
	User              string `json:"user,omitempty"`
}

func (r *GenerationRequest) toRequest() imggen.Request {
	return imggen.Request{
		Prompt:            r.Prompt,
		Model:             r.Model,
		N:                 r.N,
		Size:              r.Size,
		Quality:           r.Quality,
		Background:        r.Background,
		Moderation:        r.Moderation,
		OutputCompression: r.OutputCompression,
		OutputFormat:      r.OutputFormat,
		PartialImages:     r.PartialImages,
		User:              r.User,
	}
}

// GenerateInput is the generations endpoint input.
type GenerateInput struct {
	Body GenerationRequest
}

// GenerateOutput is the generations endpoint output.
type GenerateOutput struct {
	Body service.ImageResponse
}

// Generate handles POST /v1/images/generations.
func (h *ImageHandler) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}
	if input.Body.Stream {
		return nil, mapError(service.ErrStreamingUnsupported)
	}

	req := input.Body.toRequest()
	resp, err := h.imageSvc.Generate(ctx, user, &req)
	if err != nil {
		return nil, mapError(err)
	}
	return &GenerateOutput{Body: *resp}, nil
}

// EditRequestBody is the edits endpoint body. Source images are base64
// encoded, with or without a data URL prefix.
type EditRequestBody struct {
	GenerationRequest
	Image         []string `json:"image" doc:"Source image(s), base64 encoded"`
	Mask          string   `json:"mask,omitempty" doc:"Optional mask, base64 encoded"`
	InputFidelity string   `json:"input_fidelity,omitempty" enum:",low,medium,high"`
}

// EditInput is the edits endpoint input.
type EditInput struct {
	Body EditRequestBody
}

// Edit handles POST /v1/images/edits.
func (h *ImageHandler) Edit(ctx context.Context, input *EditInput) (*GenerateOutput, error) {
	user, appErr := requireUser(ctx)
	if appErr != nil {
		return nil, appErr
	}
	if input.Body.Stream {
		return nil, mapError(service.ErrStreamingUnsupported)
	}
	if len(input.Body.Image) == 0 {
		return nil, badRequest("At least one source image is required")
	}

	req := &imggen.EditRequest{
		Request:       input.Body.toRequest(),
		Images:        input.Body.Image,
		Mask:          input.Body.Mask,
		InputFidelity: input.Body.InputFidelity,
	}
	resp, err := h.imageSvc.Edit(ctx, user, req)
	if err != nil {
		return nil, mapError(err)
	}
	return &GenerateOutput{Body: *resp}, nil
}
