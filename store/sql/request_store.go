// Package sqlstore persists the request ledger on bun. The shipped
// dialect is sqlite; the queries stay inside the portable subset so a
// postgres deployment only swaps the dialect and DSN.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-relay/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RequestStore struct {
	db   *bun.DB
	repo repository.Repository[*requestRecord]
}

func NewRequestStore(db *bun.DB) (*RequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*requestRecord](db, requestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid request repository wiring: %w", err)
		}
	}
	return &RequestStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RequestStore) Create(ctx context.Context, record core.RequestRecord) (core.RequestRecord, error) {
	if s == nil || s.db == nil {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request id is required")
	}
	model := requestToModel(record)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: insert request: %w", err)
	}
	return requestToDomain(model), nil
}

func (s *RequestStore) Get(ctx context.Context, id string) (core.RequestRecord, error) {
	if s == nil || s.db == nil {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request id is required")
	}
	model := &requestRecord{}
	err := s.db.NewSelect().
		Model(model).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.RequestRecord{}, fmt.Errorf("sqlstore: request %q not found: %w", id, core.ErrRequestNotFound)
		}
		return core.RequestRecord{}, err
	}
	return requestToDomain(model), nil
}

func (s *RequestStore) Update(ctx context.Context, record core.RequestRecord) (core.RequestRecord, error) {
	if s == nil || s.db == nil {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request id is required")
	}
	model := requestToModel(record)
	result, err := s.db.NewUpdate().
		Model(model).
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: update request: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.RequestRecord{}, fmt.Errorf("sqlstore: request %q not found: %w", id, core.ErrRequestNotFound)
	}
	return requestToDomain(model), nil
}

func (s *RequestStore) List(ctx context.Context, filter core.ListFilter) ([]core.RequestRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: request store is not configured")
	}
	models := []*requestRecord{}
	query := s.db.NewSelect().
		Model(&models).
		Order("created_at DESC")
	if mode := strings.TrimSpace(string(filter.Mode)); mode != "" {
		query = query.Where("?TableAlias.mode = ?", mode)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: list requests: %w", err)
	}
	records := make([]core.RequestRecord, 0, len(models))
	for _, model := range models {
		records = append(records, requestToDomain(model))
	}
	return records, nil
}

// Counts aggregates the ledger for the stats endpoint. Averages cover
// terminal records only; in-flight rows have no meaningful duration yet.
func (s *RequestStore) Counts(ctx context.Context) (core.RequestCounts, error) {
	if s == nil || s.db == nil {
		return core.RequestCounts{}, fmt.Errorf("sqlstore: request store is not configured")
	}
	counts := core.RequestCounts{}

	var err error
	if counts.Total, err = s.countWhere(ctx, "", ""); err != nil {
		return core.RequestCounts{}, err
	}
	if counts.Sync, err = s.countWhere(ctx, "mode = ?", string(core.RequestModeSync)); err != nil {
		return core.RequestCounts{}, err
	}
	if counts.Async, err = s.countWhere(ctx, "mode = ?", string(core.RequestModeAsync)); err != nil {
		return core.RequestCounts{}, err
	}
	if counts.Completed, err = s.countTerminalSuccess(ctx); err != nil {
		return core.RequestCounts{}, err
	}
	if counts.Failed, err = s.countWhere(ctx, "status = ?", string(core.RequestStatusFailed)); err != nil {
		return core.RequestCounts{}, err
	}
	if counts.SyncAvgProcessingMS, err = s.avgProcessingMS(ctx, core.RequestModeSync); err != nil {
		return core.RequestCounts{}, err
	}
	if counts.AsyncAvgProcessingMS, err = s.avgProcessingMS(ctx, core.RequestModeAsync); err != nil {
		return core.RequestCounts{}, err
	}
	return counts, nil
}

func (s *RequestStore) countWhere(ctx context.Context, clause string, value string) (int, error) {
	query := s.db.NewSelect().Model((*requestRecord)(nil))
	if clause != "" {
		query = query.Where(clause, value)
	}
	count, err := query.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count requests: %w", err)
	}
	return count, nil
}

// countTerminalSuccess counts requests whose work finished, including
// async records that have since moved to a callback outcome.
func (s *RequestStore) countTerminalSuccess(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		Model((*requestRecord)(nil)).
		Where("status IN (?, ?, ?)",
			string(core.RequestStatusCompleted),
			string(core.RequestStatusCallbackSent),
			string(core.RequestStatusCallbackFailed),
		).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count completed requests: %w", err)
	}
	return count, nil
}

func (s *RequestStore) avgProcessingMS(ctx context.Context, mode core.RequestMode) (float64, error) {
	var average sql.NullFloat64
	err := s.db.NewRaw(
		"SELECT AVG(processing_time_ms) FROM relay_requests WHERE mode = ? AND completed_at IS NOT NULL",
		string(mode),
	).Scan(ctx, &average)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: average processing time: %w", err)
	}
	if !average.Valid {
		return 0, nil
	}
	return average.Float64, nil
}

func requestToModel(record core.RequestRecord) *requestRecord {
	model := &requestRecord{
		ID:               strings.TrimSpace(record.ID),
		Mode:             string(record.Mode),
		Status:           string(record.Status),
		Input:            record.Input,
		Result:           record.Result,
		ProcessingTimeMS: record.ProcessingTimeMS,
		CallbackURL:      strings.TrimSpace(record.CallbackURL),
		CallbackAttempts: record.CallbackAttempts,
		ErrorMessage:     record.ErrorMessage,
		CreatedAt:        record.CreatedAt.UTC(),
	}
	if record.CompletedAt != nil {
		stamp := record.CompletedAt.UTC()
		model.CompletedAt = &stamp
	}
	return model
}

func requestToDomain(model *requestRecord) core.RequestRecord {
	if model == nil {
		return core.RequestRecord{}
	}
	record := core.RequestRecord{
		ID:               model.ID,
		Mode:             core.RequestMode(model.Mode),
		Status:           core.RequestStatus(model.Status),
		Input:            model.Input,
		Result:           model.Result,
		ProcessingTimeMS: model.ProcessingTimeMS,
		CallbackURL:      model.CallbackURL,
		CallbackAttempts: model.CallbackAttempts,
		ErrorMessage:     model.ErrorMessage,
		CreatedAt:        model.CreatedAt,
	}
	if model.CompletedAt != nil {
		stamp := *model.CompletedAt
		record.CompletedAt = &stamp
	}
	return record
}

var _ core.RequestStore = (*RequestStore)(nil)
