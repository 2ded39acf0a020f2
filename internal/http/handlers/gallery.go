package handlers

import (
	"context"
	"fmt"

	"github.com/guitaripod/pixie/internal/service"
)

// GalleryPage is the common shape of image listing responses.
type GalleryPage struct {
	Images  []service.ImageMetadata `json:"images"`
	Total   int                     `json:"total"`
	Page    int                     `json:"page"`
	PerPage int                     `json:"per_page"`
}

// ListImagesInput is the paging input shared by the gallery endpoints.
type ListImagesInput struct {
	Page    int `query:"page" minimum:"0" doc:"Page number, 1-based"`
	PerPage int `query:"per_page" minimum:"0" maximum:"100" doc:"Items per page"`
}

// ListImagesOutput wraps a gallery page.
type ListImagesOutput struct {
	Body GalleryPage
}

// ListGallery handles GET /v1/images, the public gallery.
func (h *ImageHandler) ListGallery(ctx context.Context, input *ListImagesInput) (*ListImagesOutput, error) {
	images, total, page, perPage, err := h.imageSvc.ListImages(ctx, input.Page, input.PerPage)
	if err != nil {
		return nil, mapError(err)
	}
	return &ListImagesOutput{Body: GalleryPage{
		Images:  images,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}}, nil
}

// ListUserImagesInput addresses one user's images.
type ListUserImagesInput struct {
	UserID string `path:"userID" doc:"User whose images to list"`
	ListImagesInput
}

// ListUserImages handles GET /v1/images/user/{userID}.
func (h *ImageHandler) ListUserImages(ctx context.Context, input *ListUserImagesInput) (*ListImagesOutput, error) {
	images, total, page, perPage, err := h.imageSvc.ListUserImages(ctx, input.UserID, input.Page, input.PerPage)
	if err != nil {
		return nil, mapError(err)
	}
	return &ListImagesOutput{Body: GalleryPage{
		Images:  images,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}}, nil
}

// GetImageInput addresses a single image.
type GetImageInput struct {
	ID string `path:"id" doc:"Image id"`
}

// GetImageOutput wraps one image's metadata.
type GetImageOutput struct {
	Body service.ImageMetadata
}

// GetImage handles GET /v1/images/{id}.
func (h *ImageHandler) GetImage(ctx context.Context, input *GetImageInput) (*GetImageOutput, error) {
	meta, err := h.imageSvc.GetImage(ctx, input.ID)
	if err != nil {
		return nil, mapError(err)
	}
	if meta == nil {
		return nil, notFound(fmt.Sprintf("Image not found: %s", input.ID))
	}
	return &GetImageOutput{Body: *meta}, nil
}
