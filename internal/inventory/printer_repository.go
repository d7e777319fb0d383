package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PrinterRepository defines the interface for printer persistence.
type PrinterRepository interface {
	// GetBySerial retrieves a printer by serial.
	// Returns ErrPrinterNotFound if the printer is not registered.
	GetBySerial(ctx context.Context, serial string) (*Printer, error)

	// List retrieves all registered printers.
	List(ctx context.Context) ([]Printer, error)

	// ListAutoConnect retrieves printers flagged for connection at startup.
	ListAutoConnect(ctx context.Context) ([]Printer, error)

	// Create registers a printer.
	// Returns ErrPrinterExists if the serial is already registered.
	Create(ctx context.Context, printer *Printer) error

	// Update modifies a registered printer.
	// Returns ErrPrinterNotFound if the printer is not registered.
	Update(ctx context.Context, printer *Printer) error

	// Delete removes a printer by serial.
	// Returns ErrPrinterNotFound if the printer is not registered.
	Delete(ctx context.Context, serial string) error

	// TouchLastSeen records when the printer last reported.
	TouchLastSeen(ctx context.Context, serial string, seen time.Time) error
}

// SQLitePrinterRepository implements PrinterRepository using SQLite.
type SQLitePrinterRepository struct {
	db *sql.DB
}

// NewSQLitePrinterRepository creates a new SQLite-backed printer repository.
func NewSQLitePrinterRepository(db *sql.DB) *SQLitePrinterRepository {
	return &SQLitePrinterRepository{db: db}
}

const printerColumns = `serial, name, model, ip_address, access_code, last_seen, auto_connect`

// GetBySerial retrieves a printer by serial.
func (r *SQLitePrinterRepository) GetBySerial(ctx context.Context, serial string) (*Printer, error) {
	query := `SELECT ` + printerColumns + ` FROM printers WHERE serial = ?`

	printer, err := scanPrinter(r.db.QueryRowContext(ctx, query, serial))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrinterNotFound
		}
		return nil, fmt.Errorf("querying printer by serial: %w", err)
	}
	return printer, nil
}

// List retrieves all registered printers.
func (r *SQLitePrinterRepository) List(ctx context.Context) ([]Printer, error) {
	query := `SELECT ` + printerColumns + ` FROM printers ORDER BY name, serial`
	return r.queryPrinters(ctx, query)
}

// ListAutoConnect retrieves printers flagged for connection at startup.
func (r *SQLitePrinterRepository) ListAutoConnect(ctx context.Context) ([]Printer, error) {
	query := `SELECT ` + printerColumns + ` FROM printers WHERE auto_connect = 1 ORDER BY serial`
	return r.queryPrinters(ctx, query)
}

// Create registers a printer.
func (r *SQLitePrinterRepository) Create(ctx context.Context, printer *Printer) error {
	query := `
		INSERT INTO printers (serial, name, model, ip_address, access_code, last_seen, auto_connect)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		printer.Serial,
		printer.Name,
		printer.Model,
		printer.IPAddress,
		printer.AccessCode,
		nullableUnix(printer.LastSeen),
		boolToInt(printer.AutoConnect),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrPrinterExists
		}
		return fmt.Errorf("inserting printer: %w", err)
	}
	return nil
}

// Update modifies a registered printer.
func (r *SQLitePrinterRepository) Update(ctx context.Context, printer *Printer) error {
	query := `
		UPDATE printers SET
			name = ?, model = ?, ip_address = ?, access_code = ?,
			last_seen = ?, auto_connect = ?
		WHERE serial = ?`

	result, err := r.db.ExecContext(ctx, query,
		printer.Name,
		printer.Model,
		printer.IPAddress,
		printer.AccessCode,
		nullableUnix(printer.LastSeen),
		boolToInt(printer.AutoConnect),
		printer.Serial,
	)
	if err != nil {
		return fmt.Errorf("updating printer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrPrinterNotFound
	}
	return nil
}

// Delete removes a printer by serial.
func (r *SQLitePrinterRepository) Delete(ctx context.Context, serial string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM printers WHERE serial = ?", serial)
	if err != nil {
		return fmt.Errorf("deleting printer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrPrinterNotFound
	}
	return nil
}

// TouchLastSeen records when the printer last reported. Unknown serials
// are ignored so a race with deletion stays harmless.
func (r *SQLitePrinterRepository) TouchLastSeen(ctx context.Context, serial string, seen time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE printers SET last_seen = ? WHERE serial = ?",
		seen.UTC().Unix(), serial)
	if err != nil {
		return fmt.Errorf("touching printer last_seen: %w", err)
	}
	return nil
}

func (r *SQLitePrinterRepository) queryPrinters(ctx context.Context, query string, args ...any) ([]Printer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying printers: %w", err)
	}
	defer rows.Close()

	var printers []Printer
	for rows.Next() {
		printer, err := scanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning printer: %w", err)
		}
		printers = append(printers, *printer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating printers: %w", err)
	}
	return printers, nil
}

// scanPrinter scans one printer row using the standard column order.
func scanPrinter(row rowScanner) (*Printer, error) {
	var p Printer
	var name, model, ip, code sql.NullString
	var lastSeen sql.NullInt64
	var autoConnect int

	err := row.Scan(&p.Serial, &name, &model, &ip, &code, &lastSeen, &autoConnect)
	if err != nil {
		return nil, err
	}

	p.Name = name.String
	p.Model = model.String
	p.IPAddress = ip.String
	p.AccessCode = code.String
	p.AutoConnect = autoConnect != 0
	if lastSeen.Valid {
		t := time.Unix(lastSeen.Int64, 0).UTC()
		p.LastSeen = &t
	}
	return &p, nil
}

// nullableUnix returns a NullInt64 holding an optional time as epoch seconds.
func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
