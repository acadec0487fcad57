package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

const corsMaxAgeSeconds = 300

// CORS allows the configured public app plus TAXCREDIT_CORS_ORIGINS. Dev also
// accepts the local Next.js server.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(app),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{requestIDHeader, replayHeader},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeSeconds,
	}).Handler
}

func allowedOrigins(app config.AppConfig) []string {
	var origins []string
	add := func(o string) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && o != "*" && !slices.Contains(origins, o) {
			origins = append(origins, o)
		}
	}
	add(app.PublicURL)
	for _, o := range app.CORSOrigins {
		add(o)
	}
	if app.IsDev() {
		add("http://localhost:3000")
	}
	return origins
}
