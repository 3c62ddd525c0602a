package management

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/cel"
	pkgerrors "sieve/pkg/errors"
	"sieve/pkg/models"
)

type service struct {
	repo                Repository
	versioningRepo      VersioningRepository
	configEventProducer *ConfigEventProducer
	evaluator           *cel.Evaluator
	logger              logger.Logger
}

type ServiceOption func(*service)

func WithVersioning(versioningRepo VersioningRepository) ServiceOption {
	return func(s *service) {
		s.versioningRepo = versioningRepo
	}
}

func WithConfigEvents(configEventProducer *ConfigEventProducer) ServiceOption {
	return func(s *service) {
		s.configEventProducer = configEventProducer
	}
}

func WithLogger(log logger.Logger) ServiceOption {
	return func(s *service) {
		s.logger = log
	}
}

func NewService(repo Repository, opts ...ServiceOption) (Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	s := &service{
		repo:      repo,
		evaluator: evaluator,
		logger:    logger.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *service) CreateFilterSet(ctx context.Context, req CreateFilterSetRequest) (*models.FilterSet, error) {
	if _, err := validateFilterSet(s.evaluator, req.Name, req.Filters, req.Condition); err != nil {
		return nil, validationError(err)
	}

	filters := req.Filters
	if filters == nil {
		filters = models.FilterList{}
	}

	set := &models.FilterSet{
		Name:        req.Name,
		Description: req.Description,
		Filters:     filters,
		Condition:   req.Condition,
		Priority:    req.Priority,
		Enabled:     getEnabledValue(req.Enabled),
	}

	if err := s.repo.CreateFilterSet(ctx, set); err != nil {
		return nil, pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}

	s.createVersionAndAudit(ctx, set, models.ActionCreate, nil)
	s.publishConfigEvent(ctx, models.ActionCreate, set.ID)

	return set.Clone(), nil
}

func (s *service) ListFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	sets, err := s.repo.ListFilterSets(ctx)
	if err != nil {
		return nil, pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}
	if sets == nil {
		sets = []models.FilterSet{}
	}
	return sets, nil
}

func (s *service) GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error) {
	set, err := s.repo.GetFilterSet(ctx, id)
	if err != nil {
		return nil, pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}
	return set, nil
}

func (s *service) UpdateFilterSet(ctx context.Context, id string, req UpdateFilterSetRequest) (*models.FilterSet, error) {
	set, err := s.repo.GetFilterSet(ctx, id)
	if err != nil {
		return nil, pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}

	oldValue := filterSetToMap(set)
	updated := set.Clone()
	applyUpdate(updated, req)

	if _, err := validateFilterSet(s.evaluator, updated.Name, updated.Filters, updated.Condition); err != nil {
		return nil, validationError(err)
	}

	if err := s.repo.UpdateFilterSet(ctx, updated); err != nil {
		return nil, pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}

	action := models.ActionUpdate
	if req.onlyEnabledChanged() {
		action = models.ActionToggle
	}

	s.createVersionAndAudit(ctx, updated, action, oldValue)
	s.publishConfigEvent(ctx, action, updated.ID)

	return updated, nil
}

func (s *service) DeleteFilterSet(ctx context.Context, id string) error {
	set, err := s.repo.GetFilterSet(ctx, id)
	if err != nil {
		return pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}

	if err := s.repo.DeleteFilterSet(ctx, id); err != nil {
		return pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}

	if s.versioningRepo != nil {
		auditLog := newAuditLog(ctx, id, models.ActionDelete, filterSetToMap(set), nil)
		if err := s.versioningRepo.CreateAuditLog(ctx, auditLog); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to write audit log", "filter_set_id", id, "error", err)
		}
	}

	s.publishConfigEvent(ctx, models.ActionDelete, id)
	return nil
}

func (s *service) GetFilterSetVersions(ctx context.Context, id string) ([]FilterSetVersion, error) {
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "versioning not enabled")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	versions, err := s.versioningRepo.GetVersions(ctx, id)
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}
	return versions, nil
}

func (s *service) GetAuditLogs(ctx context.Context, filterSetID *string, action string, limit int) ([]AuditLog, error) {
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if filterSetID != nil {
		if _, err := uuid.Parse(*filterSetID); err != nil {
			return []AuditLog{}, nil
		}
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}
	logs, err := s.versioningRepo.GetAuditLogs(ctx, filterSetID, action, limit)
	if err != nil {
		return nil, pkgerrors.ErrInternal.WithCause(err)
	}
	return logs, nil
}

// EvaluateFilterSet dry-runs a stored set against a subject. Disabled sets
// are evaluated too.
func (s *service) EvaluateFilterSet(ctx context.Context, id string, req EvaluateRequest) (*EvaluateResponse, error) {
	set, err := s.repo.GetFilterSet(ctx, id)
	if err != nil {
		return nil, pkgerrors.WrapUnlessTyped(err, pkgerrors.ErrInternal)
	}

	program, expr, err := s.evaluator.CompileFilterSet(set.Filters, set.Condition)
	if err != nil {
		return nil, validationError(err)
	}

	matched, err := s.evaluator.Matches(ctx, program, req.subject())
	if err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(err).WithDetail("message", err.Error())
	}

	return &EvaluateResponse{
		FilterSetID: set.ID,
		Matched:     matched,
		Expression:  expr,
	}, nil
}

func (s *service) ValidateFilters(ctx context.Context, req ValidateFiltersRequest) (*ValidateFiltersResponse, error) {
	expr, err := validateFilters(s.evaluator, req.Filters, req.Condition)
	if err != nil {
		return nil, validationError(err)
	}

	descriptions := make([]string, len(req.Filters))
	for i, f := range req.Filters {
		descriptions[i] = models.Describe(f)
	}

	return &ValidateFiltersResponse{
		Valid:        true,
		Expression:   expr,
		Descriptions: descriptions,
	}, nil
}

func (s *service) createVersionAndAudit(ctx context.Context, set *models.FilterSet, action string, oldValue map[string]interface{}) {
	if s.versioningRepo == nil {
		return
	}

	data, err := snapshot(set)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to snapshot filter set", "filter_set_id", set.ID, "error", err)
		return
	}

	version, err := s.versioningRepo.GetNextVersion(ctx, set.ID)
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to get next version", "filter_set_id", set.ID, "error", err)
		return
	}

	info := requestInfoFrom(ctx)
	if err := s.versioningRepo.CreateVersion(ctx, &FilterSetVersion{
		FilterSetID:  set.ID,
		Data:         data,
		Version:      version,
		ChangedBy:    info.ChangedBy,
		ChangeReason: info.ChangeReason,
	}); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to create filter set version", "filter_set_id", set.ID, "error", err)
		return
	}

	auditLog := newAuditLog(ctx, set.ID, action, oldValue, filterSetToMap(set))
	if err := s.versioningRepo.CreateAuditLog(ctx, auditLog); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to write audit log", "filter_set_id", set.ID, "error", err)
	}
}

func (s *service) publishConfigEvent(ctx context.Context, action, filterSetID string) {
	if s.configEventProducer == nil {
		return
	}
	if err := s.configEventProducer.PublishFilterSetEvent(ctx, action, filterSetID, requestInfoFrom(ctx).ChangedBy); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish config event",
			"filter_set_id", filterSetID,
			"action", action,
			"error", err,
		)
	}
}

func applyUpdate(set *models.FilterSet, req UpdateFilterSetRequest) {
	if req.Name != nil {
		set.Name = *req.Name
	}
	if req.Description != nil {
		set.Description = *req.Description
	}
	if req.Filters != nil {
		set.Filters = *req.Filters
		if set.Filters == nil {
			set.Filters = models.FilterList{}
		}
	}
	if req.Condition != nil {
		set.Condition = *req.Condition
	}
	if req.Priority != nil {
		set.Priority = *req.Priority
	}
	if req.Enabled != nil {
		set.Enabled = *req.Enabled
	}
}

func validationError(err error) error {
	appErr := pkgerrors.ErrValidation.WithCause(err).WithDetail("message", err.Error())
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		appErr = appErr.WithDetail("field", ve.Field)
	}
	return appErr
}

func getEnabledValue(reqEnabled *bool) bool {
	if reqEnabled == nil {
		return true
	}
	return *reqEnabled
}
