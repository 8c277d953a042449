package handlers

import (
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
)

// RequestLogger logs every API request with its duration.
func RequestLogger(log *slog.Logger) *hook.Handler[*core.RequestEvent] {
	return &hook.Handler[*core.RequestEvent]{
		Id: "RequestLogger",
		Func: func(e *core.RequestEvent) error {
			start := time.Now()
			err := e.Next()

			attrs := []any{
				"method", e.Request.Method,
				"path", e.Request.URL.Path,
				"duration", time.Since(start),
			}
			if err != nil {
				log.Warn("request failed", append(attrs, "err", err)...)
				return err
			}
			log.Debug("request", attrs...)
			return nil
		},
	}
}
