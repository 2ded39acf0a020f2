package mw

import (
	"net/http"

	"github.com/guitaripod/pixie/internal/version"
)

// APIVersion stamps every response with an X-API-Version header so the
// CLI and SDKs can detect incompatible servers before parsing bodies.
func APIVersion() func(http.Handler) http.Handler {
	// Resolved once; the build identity cannot change at runtime.
	apiVersion := version.Get().Short()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API-Version", apiVersion)
			next.ServeHTTP(w, r)
		})
	}
}
