package httpmiddleware

import (
	"net/http"
	"slices"

	"github.com/rs/cors"
)

// CORSConfig configures cross-origin handling.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

var defaultCORSMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// CORS answers preflight requests and sets CORS headers on actual requests.
//
// A wildcard origin combined with credentials echoes the request origin
// instead of "*", which browsers reject for credentialed requests.
func CORS(cfg CORSConfig) Middleware {
	opts := cors.Options{
		AllowedOrigins:   cfg.AllowOrigins,
		AllowedMethods:   cfg.AllowMethods,
		AllowedHeaders:   cfg.AllowHeaders,
		ExposedHeaders:   cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = defaultCORSMethods
	}
	allowAll := len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*")
	if allowAll {
		opts.AllowedOrigins = []string{"*"}
		if cfg.AllowCredentials {
			opts.AllowedOrigins = nil
			opts.AllowOriginFunc = func(string) bool { return true }
		}
	}
	return cors.New(opts).Handler
}
