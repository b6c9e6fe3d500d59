package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/promptc/internal/domain"
	"github.com/longregen/promptc/internal/domain/models"
)

// CompiledProgramRepository implements ports.CompiledProgramRepository.
// Artifacts are stored as opaque msgpack payloads; the prompt package owns
// the wire format.
type CompiledProgramRepository struct {
	BaseRepository
}

// NewCompiledProgramRepository creates a new compiled program repository
func NewCompiledProgramRepository(pool *pgxpool.Pool) *CompiledProgramRepository {
	return &CompiledProgramRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

// SaveArtifact inserts a frozen program artifact
func (r *CompiledProgramRepository) SaveArtifact(ctx context.Context, artifact *models.CompiledArtifact) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO compiled_programs (
			id, run_id, name, payload, best_score, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err := r.conn(ctx).Exec(ctx, query,
		artifact.ID,
		artifact.RunID,
		artifact.Name,
		artifact.Payload,
		artifact.BestScore,
		artifact.CreatedAt,
	)

	return err
}

// GetArtifact retrieves an artifact by ID
func (r *CompiledProgramRepository) GetArtifact(ctx context.Context, id string) (*models.CompiledArtifact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, run_id, name, payload, best_score, created_at
		FROM compiled_programs
		WHERE id = $1 AND deleted_at IS NULL`

	return r.scanArtifact(r.conn(ctx).QueryRow(ctx, query, id))
}

// GetArtifactByRun retrieves the artifact produced by a run
func (r *CompiledProgramRepository) GetArtifactByRun(ctx context.Context, runID string) (*models.CompiledArtifact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, run_id, name, payload, best_score, created_at
		FROM compiled_programs
		WHERE run_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`

	return r.scanArtifact(r.conn(ctx).QueryRow(ctx, query, runID))
}

// ListArtifacts retrieves artifacts with pagination, newest first
func (r *CompiledProgramRepository) ListArtifacts(ctx context.Context, limit, offset int) ([]*models.CompiledArtifact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, run_id, name, payload, best_score, created_at
		FROM compiled_programs
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := make([]*models.CompiledArtifact, 0)
	for rows.Next() {
		var artifact models.CompiledArtifact
		err := rows.Scan(
			&artifact.ID,
			&artifact.RunID,
			&artifact.Name,
			&artifact.Payload,
			&artifact.BestScore,
			&artifact.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &artifact)
	}

	return artifacts, rows.Err()
}

func (r *CompiledProgramRepository) scanArtifact(row pgx.Row) (*models.CompiledArtifact, error) {
	var artifact models.CompiledArtifact

	err := row.Scan(
		&artifact.ID,
		&artifact.RunID,
		&artifact.Name,
		&artifact.Payload,
		&artifact.BestScore,
		&artifact.CreatedAt,
	)
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrProgramNotFound, fmt.Sprintf("compiled program not found: %v", err))
		}
		return nil, err
	}

	return &artifact, nil
}
