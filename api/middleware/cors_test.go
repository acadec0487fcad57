package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

func TestAllowedOrigins(t *testing.T) {
	app := config.AppConfig{
		Env:         "prod",
		PublicURL:   "https://app.taxcredit.exchange/",
		CORSOrigins: []string{" https://admin.taxcredit.exchange", "*", "https://app.taxcredit.exchange"},
	}
	require.Equal(t, []string{"https://app.taxcredit.exchange", "https://admin.taxcredit.exchange"}, allowedOrigins(app))

	app.Env = config.AppEnvDev
	require.Contains(t, allowedOrigins(app), "http://localhost:3000")
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(config.AppConfig{Env: "prod", PublicURL: "https://app.taxcredit.exchange"})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/holds", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	ok := preflight("https://app.taxcredit.exchange")
	require.Equal(t, "https://app.taxcredit.exchange", ok.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", ok.Header().Get("Access-Control-Allow-Credentials"))

	denied := preflight("https://evil.example")
	require.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}
