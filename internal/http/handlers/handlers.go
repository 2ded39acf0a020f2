// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/guitaripod/pixie/internal/http/mw"
	"github.com/guitaripod/pixie/internal/models"
	"github.com/guitaripod/pixie/internal/version"
)

// Health serves GET /, the unversioned health probe.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version.Get().Short(),
	})
}

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// getUser extracts the authenticated user from context.
func getUser(ctx context.Context) *models.User {
	return mw.GetUser(ctx)
}

// requireUser returns the authenticated user or a 401 envelope.
func requireUser(ctx context.Context) (*models.User, *AppError) {
	user := getUser(ctx)
	if user == nil {
		return nil, unauthorized("Invalid or missing API key")
	}
	return user, nil
}
