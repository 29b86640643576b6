package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rookgm/paywatch/internal/logger"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Pinger checks storage availability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness; 503 when storage is unreachable
func Health(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			logger.Log.Warn("health check", zap.Error(err))
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
