package http

import (
	"net/http"

	"github.com/rs/cors"
)

// corsHeaders are the request headers browsers may send cross-origin. The
// trace context headers let a frontend join the server-side trace.
var corsHeaders = []string{"Content-Type", "traceparent", "tracestate", "baggage"}

// CORS allows browser clients from allowedOrigins to call the API. An empty
// list or "*" allows any origin. Preflight requests are answered directly.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: corsHeaders,
		MaxAge:         600,
	}).Handler(next)
}
