package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SpoolRepository defines the interface for spool persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type SpoolRepository interface {
	// GetByID retrieves a spool by its unique identifier.
	// Returns ErrSpoolNotFound if the spool does not exist.
	GetByID(ctx context.Context, id string) (*Spool, error)

	// GetByTag retrieves a spool by its RFID tag id.
	// Returns ErrSpoolNotFound if no spool carries the tag.
	GetByTag(ctx context.Context, tagID string) (*Spool, error)

	// List retrieves all spools.
	List(ctx context.Context) ([]Spool, error)

	// ListByMaterial retrieves all spools of a specific material.
	ListByMaterial(ctx context.Context, material string) ([]Spool, error)

	// Create inserts a new spool, generating an id when none is set.
	// Returns ErrSpoolExists on id or tag collision.
	Create(ctx context.Context, spool *Spool) error

	// Update modifies an existing spool.
	// Returns ErrSpoolNotFound if the spool does not exist.
	Update(ctx context.Context, spool *Spool) error

	// Delete removes a spool by id. Usage history cascades.
	// Returns ErrSpoolNotFound if the spool does not exist.
	Delete(ctx context.Context, id string) error

	// RecordUsage appends a usage entry and decrements the spool's
	// current weight when one is tracked.
	RecordUsage(ctx context.Context, entry *UsageEntry) error

	// UsageHistory retrieves a spool's usage entries, newest first.
	UsageHistory(ctx context.Context, spoolID string, limit int) ([]UsageEntry, error)
}

// SQLiteSpoolRepository implements SpoolRepository using SQLite.
type SQLiteSpoolRepository struct {
	db *sql.DB
}

// NewSQLiteSpoolRepository creates a new SQLite-backed spool repository.
// The db parameter should be an open SQLite connection with the schema
// migrated.
func NewSQLiteSpoolRepository(db *sql.DB) *SQLiteSpoolRepository {
	return &SQLiteSpoolRepository{db: db}
}

const spoolColumns = `id, tag_id, material, subtype, color_name, rgba, brand,
	label_weight, core_weight, weight_new, weight_current,
	slicer_filament, note, created_at, updated_at`

// GetByID retrieves a spool by its unique identifier.
func (r *SQLiteSpoolRepository) GetByID(ctx context.Context, id string) (*Spool, error) {
	query := `SELECT ` + spoolColumns + ` FROM spools WHERE id = ?`

	spool, err := scanSpool(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpoolNotFound
		}
		return nil, fmt.Errorf("querying spool by id: %w", err)
	}
	return spool, nil
}

// GetByTag retrieves a spool by its RFID tag id.
func (r *SQLiteSpoolRepository) GetByTag(ctx context.Context, tagID string) (*Spool, error) {
	query := `SELECT ` + spoolColumns + ` FROM spools WHERE tag_id = ?`

	spool, err := scanSpool(r.db.QueryRowContext(ctx, query, tagID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpoolNotFound
		}
		return nil, fmt.Errorf("querying spool by tag: %w", err)
	}
	return spool, nil
}

// List retrieves all spools.
func (r *SQLiteSpoolRepository) List(ctx context.Context) ([]Spool, error) {
	query := `SELECT ` + spoolColumns + ` FROM spools ORDER BY material, color_name`
	return r.querySpools(ctx, query)
}

// ListByMaterial retrieves all spools of a specific material.
func (r *SQLiteSpoolRepository) ListByMaterial(ctx context.Context, material string) ([]Spool, error) {
	query := `SELECT ` + spoolColumns + ` FROM spools WHERE material = ? ORDER BY color_name`
	return r.querySpools(ctx, query, material)
}

// Create inserts a new spool.
func (r *SQLiteSpoolRepository) Create(ctx context.Context, spool *Spool) error {
	if spool.ID == "" {
		spool.ID = "spl-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	if spool.CreatedAt.IsZero() {
		spool.CreatedAt = now
	}
	spool.UpdatedAt = now

	query := `
		INSERT INTO spools (
			id, tag_id, material, subtype, color_name, rgba, brand,
			label_weight, core_weight, weight_new, weight_current,
			slicer_filament, note, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		spool.ID,
		nullableString(spool.TagID),
		spool.Material,
		nullableString(spool.Subtype),
		nullableString(spool.ColorName),
		nullableString(spool.RGBA),
		nullableString(spool.Brand),
		spool.LabelWeight,
		spool.CoreWeight,
		nullableInt(spool.WeightNew),
		nullableInt(spool.WeightCurrent),
		nullableString(spool.SlicerFilament),
		nullableString(spool.Note),
		spool.CreatedAt.Unix(),
		spool.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSpoolExists
		}
		return fmt.Errorf("inserting spool: %w", err)
	}
	return nil
}

// Update modifies an existing spool.
func (r *SQLiteSpoolRepository) Update(ctx context.Context, spool *Spool) error {
	spool.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE spools SET
			tag_id = ?, material = ?, subtype = ?, color_name = ?, rgba = ?,
			brand = ?, label_weight = ?, core_weight = ?, weight_new = ?,
			weight_current = ?, slicer_filament = ?, note = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableString(spool.TagID),
		spool.Material,
		nullableString(spool.Subtype),
		nullableString(spool.ColorName),
		nullableString(spool.RGBA),
		nullableString(spool.Brand),
		spool.LabelWeight,
		spool.CoreWeight,
		nullableInt(spool.WeightNew),
		nullableInt(spool.WeightCurrent),
		nullableString(spool.SlicerFilament),
		nullableString(spool.Note),
		spool.UpdatedAt.Unix(),
		spool.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSpoolExists
		}
		return fmt.Errorf("updating spool: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrSpoolNotFound
	}
	return nil
}

// Delete removes a spool by id.
func (r *SQLiteSpoolRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM spools WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting spool: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrSpoolNotFound
	}
	return nil
}

// RecordUsage appends a usage entry and keeps the tracked weight in step.
func (r *SQLiteSpoolRepository) RecordUsage(ctx context.Context, entry *UsageEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning usage transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO usage_history (spool_id, printer_serial, print_name, weight_used, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		entry.SpoolID,
		nullableString(&entry.PrinterSerial),
		nullableString(&entry.PrintName),
		entry.WeightUsed,
		entry.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting usage entry: %w", err)
	}
	if entry.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading usage entry id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE spools
		SET weight_current = MAX(core_weight, weight_current - ?), updated_at = ?
		WHERE id = ? AND weight_current IS NOT NULL`,
		entry.WeightUsed,
		time.Now().UTC().Unix(),
		entry.SpoolID,
	)
	if err != nil {
		return fmt.Errorf("adjusting spool weight: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing usage entry: %w", err)
	}
	return nil
}

// UsageHistory retrieves a spool's usage entries, newest first.
func (r *SQLiteSpoolRepository) UsageHistory(ctx context.Context, spoolID string, limit int) ([]UsageEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, spool_id, printer_serial, print_name, weight_used, timestamp
		FROM usage_history
		WHERE spool_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, spoolID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage history: %w", err)
	}
	defer rows.Close()

	var entries []UsageEntry
	for rows.Next() {
		var e UsageEntry
		var serial, printName sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &e.SpoolID, &serial, &printName, &e.WeightUsed, &ts); err != nil {
			return nil, fmt.Errorf("scanning usage entry: %w", err)
		}
		e.PrinterSerial = serial.String
		e.PrintName = printName.String
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage history: %w", err)
	}
	return entries, nil
}

// querySpools runs a SELECT with the standard spool column list.
func (r *SQLiteSpoolRepository) querySpools(ctx context.Context, query string, args ...any) ([]Spool, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying spools: %w", err)
	}
	defer rows.Close()

	var spools []Spool
	for rows.Next() {
		spool, err := scanSpool(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning spool: %w", err)
		}
		spools = append(spools, *spool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spools: %w", err)
	}
	return spools, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSpool scans one spool row using the standard column order.
func scanSpool(row rowScanner) (*Spool, error) {
	var s Spool
	var tagID, subtype, colorName, rgba, brand, slicerFilament, note sql.NullString
	var weightNew, weightCurrent sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&s.ID, &tagID, &s.Material, &subtype, &colorName, &rgba, &brand,
		&s.LabelWeight, &s.CoreWeight, &weightNew, &weightCurrent,
		&slicerFilament, &note, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.TagID = stringPtr(tagID)
	s.Subtype = stringPtr(subtype)
	s.ColorName = stringPtr(colorName)
	s.RGBA = stringPtr(rgba)
	s.Brand = stringPtr(brand)
	s.SlicerFilament = stringPtr(slicerFilament)
	s.Note = stringPtr(note)
	s.WeightNew = intPtr(weightNew)
	s.WeightCurrent = intPtr(weightCurrent)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableInt returns a sql.NullInt64 for optional int pointers.
func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// stringPtr converts a NullString back to an optional pointer.
func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// intPtr converts a NullInt64 back to an optional pointer.
func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
