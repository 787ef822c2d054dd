package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const localFrontendOrigin = "http://localhost:3000"

// CORS allows the configured frontend plus the local dev origin.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	origins := []string{localFrontendOrigin}
	if origin := strings.TrimRight(strings.TrimSpace(frontendURL), "/"); origin != "" && origin != localFrontendOrigin {
		origins = append(origins, origin)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
