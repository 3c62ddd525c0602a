package filtering

import (
	"sieve/internal/config_handler"
	"sieve/internal/logger"
	"sieve/pkg/models"
)

type Handler = config_handler.Handler

// NewHandler reloads service on filter set update events. A non-nil cache is
// invalidated before each reload.
func NewHandler(service *Service, cache *CachedRepository, log logger.Logger) *Handler {
	h := config_handler.NewHandlerWithReloader(
		models.EventTypeFilterSetUpdated,
		models.ServiceTypeFiltering,
		service,
		log,
	)
	if cache != nil {
		h = h.WithInvalidator(cache)
	}
	return h
}
