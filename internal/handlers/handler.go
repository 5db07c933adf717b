// Package handlers holds the gin handlers of the back office.
package handlers

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go-pos-sync/internal/ai"
	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/notify"
	"go-pos-sync/internal/processor"
	"go-pos-sync/internal/storage"

	"gorm.io/gorm"
)

// Handler carries the dependencies shared by every route.
type Handler struct {
	DB         *gorm.DB
	Proc       *processor.Processor
	Cache      cache.ProductCache
	Uploader   storage.Uploader
	Tokens     *auth.Issuer
	Assistant  *ai.Assistant
	Hub        *notify.Hub
	InstanceID string
	Log        *slog.Logger
	Now        func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// ChangeNotifier drops the cached product list when products change and
// tells connected terminals what moved. Pass it to processor.WithNotifier.
func ChangeNotifier(c cache.ProductCache, hub *notify.Hub, log *slog.Logger) func([]string) {
	return func(collections []string) {
		if c != nil && slices.Contains(collections, models.CollectionProducts) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := c.Invalidate(ctx); err != nil {
				log.Warn("product cache invalidation failed", "err", err)
			}
			cancel()
		}
		if hub != nil {
			hub.Notify(collections)
		}
	}
}
