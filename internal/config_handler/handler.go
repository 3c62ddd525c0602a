package config_handler

import (
	"context"
	"errors"

	"sieve/internal/logger"
	"sieve/pkg/models"
)

type ConfigReloader interface {
	ReloadFilterSets(ctx context.Context, skipJitter ...bool) error
}

// CacheInvalidator drops cached state ahead of a reload.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Handler struct {
	expectedEventType   string
	expectedServiceType string
	reloader            ConfigReloader
	invalidator         CacheInvalidator
	logger              logger.Logger
}

func NewHandler(expectedEventType, expectedServiceType string, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType:   expectedEventType,
		expectedServiceType: expectedServiceType,
		logger:              log,
	}
}

func NewHandlerWithReloader(expectedEventType, expectedServiceType string, reloader ConfigReloader, log logger.Logger) *Handler {
	return NewHandler(expectedEventType, expectedServiceType, log).WithReloader(reloader)
}

func (h *Handler) WithReloader(reloader ConfigReloader) *Handler {
	h.reloader = reloader
	return h
}

func (h *Handler) WithInvalidator(invalidator CacheInvalidator) *Handler {
	h.invalidator = invalidator
	return h
}

// HandleConfigUpdateEvent ignores events for other event or service types.
// Malformed events are logged and dropped; reload failures are returned.
func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	event, err := models.ConfigUpdateEventFromEnvelope(envelope)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			h.logger.WarnwCtx(ctx, "Dropping malformed config event", "id", envelope.ID, "error", err)
			return nil
		}
		return err
	}
	if event.EventType != h.expectedEventType || event.ServiceType != h.expectedServiceType {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"filter_set_id", event.FilterSetID,
		"changed_by", event.ChangedBy,
	)

	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx); err != nil {
			h.logger.WarnwCtx(ctx, "Failed to invalidate cache after config update", "error", err)
		}
	}

	if h.reloader == nil {
		return nil
	}

	if err := h.reloader.ReloadFilterSets(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload filter sets after config update", "error", err)
		return err
	}
	h.logger.InfowCtx(ctx, "Filter sets reloaded after config update", "action", event.Action)

	return nil
}
