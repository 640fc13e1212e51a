package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const derivativeColumns = "id, source_file_id, kind, generator_name, generator_version, input_hash, relative_path, content_hash, size_bytes, created_at"

func scanDerivative(scanner interface{ Scan(dest ...any) error }) (*Derivative, error) {
	var (
		id               string
		sourceFileID     string
		kind             string
		generatorName    string
		generatorVersion string
		inputHash        string
		relativePath     string
		contentHash      string
		sizeBytes        int64
		createdRaw       sql.NullString
	)
	if err := scanner.Scan(&id, &sourceFileID, &kind, &generatorName, &generatorVersion,
		&inputHash, &relativePath, &contentHash, &sizeBytes, &createdRaw); err != nil {
		return nil, err
	}
	derivative := &Derivative{
		ID:               id,
		SourceFileID:     sourceFileID,
		Kind:             DerivativeKind(kind),
		GeneratorName:    generatorName,
		GeneratorVersion: generatorVersion,
		InputHash:        inputHash,
		RelativePath:     relativePath,
		ContentHash:      contentHash,
		SizeBytes:        sizeBytes,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		derivative.CreatedAt = created
	}
	return derivative, nil
}

// FindDerivative looks up a cached derivative by its identity tuple. Returns
// nil when no derivative has been produced for that tuple.
func (s *Store) FindDerivative(ctx context.Context, sourceFileID string, kind DerivativeKind, generatorVersion, inputHash string) (*Derivative, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+derivativeColumns+` FROM derivatives
         WHERE source_file_id = ? AND kind = ? AND generator_version = ? AND input_hash = ?`,
		sourceFileID,
		string(kind),
		generatorVersion,
		inputHash,
	)
	derivative, err := scanDerivative(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find derivative: %w", err)
	}
	return derivative, nil
}

// InsertDerivative records a freshly produced derivative. Losing the
// uniqueness race surfaces as a conflict; callers must discard their bytes
// and re-query the winner.
func (s *Store) InsertDerivative(ctx context.Context, derivative *Derivative) (*Derivative, error) {
	if derivative == nil {
		return nil, errors.New("derivative is nil")
	}
	if derivative.ID == "" {
		derivative.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO derivatives (`+derivativeColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		derivative.ID,
		derivative.SourceFileID,
		string(derivative.Kind),
		derivative.GeneratorName,
		derivative.GeneratorVersion,
		derivative.InputHash,
		derivative.RelativePath,
		derivative.ContentHash,
		derivative.SizeBytes,
		formatTime(time.Now()),
	)
	if err != nil {
		if IsConflict(err) {
			return nil, fmt.Errorf("insert derivative: %w: %w", ErrConflict, err)
		}
		return nil, fmt.Errorf("insert derivative: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+derivativeColumns+` FROM derivatives WHERE id = ?`, derivative.ID)
	inserted, err := scanDerivative(row)
	if err != nil {
		return nil, fmt.Errorf("reload derivative: %w", err)
	}
	return inserted, nil
}

// DerivativesForSourceFile returns all derivatives of a source file.
func (s *Store) DerivativesForSourceFile(ctx context.Context, sourceFileID string) ([]*Derivative, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+derivativeColumns+` FROM derivatives WHERE source_file_id = ? ORDER BY created_at, id`,
		sourceFileID,
	)
	if err != nil {
		return nil, fmt.Errorf("derivatives for source file: %w", err)
	}
	defer rows.Close()

	var derivatives []*Derivative
	for rows.Next() {
		derivative, err := scanDerivative(rows)
		if err != nil {
			return nil, err
		}
		derivatives = append(derivatives, derivative)
	}
	return derivatives, rows.Err()
}
