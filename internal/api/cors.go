package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// newCORS accepts every origin. allowed only decides how a request is
// logged: listed origins at debug, others at info.
func newCORS(allowed []string, logger *slog.Logger) *cors.Cors {
	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			if originListed(allowed, origin) {
				logger.Debug("cors origin allowed", "origin", origin)
			} else {
				logger.Info("cors origin not in allow-list, permitting", "origin", origin)
			}
			return true
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
}

func originListed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if strings.HasPrefix(origin, a) {
			return true
		}
	}
	return false
}
