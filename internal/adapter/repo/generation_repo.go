package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leavend/genstudio/internal/domain"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a generation repository backed by PostgreSQL.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Create inserts a PENDING record. The caller assigns the id so it can double
// as the queue job id.
func (r *GenerationRepositoryPG) Create(ctx context.Context, g *domain.Generation) error {
	if g.ID == "" || g.UserID == "" || g.Kind == "" {
		return fmt.Errorf("%w: generation id, user and kind are required", domain.ErrInvalidRequest)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneration, g.ID, g.UserID, g.Kind, g.Prompt, g.Model, nullableJSON(g.Params))
	if err := row.Scan(&g.CreatedAt, &g.UpdatedAt); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	g.Status = domain.GenerationPending
	return nil
}

// MarkProcessing moves the record to PROCESSING and clears a previous error,
// so a retried job starts from a clean record.
func (r *GenerationRepositoryPG) MarkProcessing(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkGenerationProcessing, id)
	if err != nil {
		return fmt.Errorf("mark generation processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GenerationRepositoryPG) MarkCompleted(ctx context.Context, id, resultURL, provider string, attempts []domain.Attempt) error {
	raw, err := marshalAttempts(attempts)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkGenerationCompleted, id, resultURL, provider, raw)
	if err != nil {
		return fmt.Errorf("mark generation completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GenerationRepositoryPG) MarkFailed(ctx context.Context, id, reason string, attempts []domain.Attempt) error {
	raw, err := marshalAttempts(attempts)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkGenerationFailed, id, reason, raw)
	if err != nil {
		return fmt.Errorf("mark generation failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches a generation by id.
func (r *GenerationRepositoryPG) Get(ctx context.Context, id string) (*domain.Generation, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGeneration, id)
	var (
		g           domain.Generation
		params      []byte
		attempts    []byte
		status      string
		completedAt *time.Time
	)
	if err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.Kind,
		&g.Prompt,
		&g.Model,
		&params,
		&status,
		&g.ResultURL,
		&g.Provider,
		&g.Error,
		&attempts,
		&g.CreatedAt,
		&g.UpdatedAt,
		&completedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	g.Status = domain.GenerationStatus(status)
	g.CompletedAt = completedAt
	if len(params) > 0 {
		g.Params = json.RawMessage(params)
	}
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &g.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	return &g, nil
}

func marshalAttempts(attempts []domain.Attempt) ([]byte, error) {
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	raw, err := json.Marshal(attempts)
	if err != nil {
		return nil, fmt.Errorf("encode attempts: %w", err)
	}
	return raw, nil
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
