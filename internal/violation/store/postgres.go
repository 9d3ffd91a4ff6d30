package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"trafficwatch/internal/violation/models"
	"trafficwatch/pkg/platform/sentinel"
)

//go:embed schema.sql
var schemaSQL string

// writeLockKey is the advisory lock that serializes violation writers so id
// order matches commit order.
const writeLockKey int64 = 0x7472616666696321

const violationColumns = `id, violation_type, plate, camera_id, detected_at, fine_amount,
	registry_version, status, created_at, updated_at`

// Postgres persists violations in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store. Call Migrate first.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the violations schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply violations schema: %w", classify(err))
	}
	return nil
}

func (s *Postgres) Insert(ctx context.Context, v models.Violation, now time.Time) (models.Violation, error) {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return models.Violation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now = storedTime(now)
	v.DetectedAt = storedTime(v.DetectedAt)
	v.Status = models.StatusDetected
	v.CreatedAt = now
	v.UpdatedAt = now
	err = tx.QueryRowContext(ctx, `
		INSERT INTO violations (
			violation_type, plate, camera_id, detected_at, fine_amount,
			registry_version, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		string(v.Type),
		v.Plate,
		v.CameraID,
		v.DetectedAt,
		v.FineAmount,
		v.RegistryVersion,
		string(v.Status),
		v.CreatedAt,
		v.UpdatedAt,
	).Scan(&v.ID)
	if err != nil {
		return models.Violation{}, fmt.Errorf("insert violation: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return models.Violation{}, fmt.Errorf("commit violation insert: %w", classify(err))
	}
	return v, nil
}

func (s *Postgres) Get(ctx context.Context, id int64) (models.Violation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+violationColumns+` FROM violations WHERE id = $1`, id)
	v, err := scanViolation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Violation{}, fmt.Errorf("violation %d: %w", id, sentinel.ErrNotFound)
		}
		return models.Violation{}, fmt.Errorf("find violation: %w", classify(err))
	}
	return v, nil
}

// List counts and pages inside one repeatable-read transaction so total and
// items come from the same snapshot.
func (s *Postgres) List(ctx context.Context, filter models.Filter, page models.Page) ([]models.Violation, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin violation list: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	where, args := whereClause(filter)

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM violations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count violations: %w", classify(err))
	}

	args = append(args, page.Limit, page.Offset)
	query := `SELECT ` + violationColumns + ` FROM violations` + where +
		` ORDER BY id ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query violations: %w", classify(err))
	}
	defer rows.Close()

	items := make([]models.Violation, 0, page.Limit)
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan violation: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate violations: %w", classify(err))
	}
	return items, total, nil
}

func (s *Postgres) Transition(ctx context.Context, id int64, to models.Status, now time.Time) (models.Violation, models.Status, error) {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return models.Violation{}, "", err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+violationColumns+` FROM violations WHERE id = $1 FOR UPDATE`, id)
	v, err := scanViolation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Violation{}, "", fmt.Errorf("violation %d: %w", id, sentinel.ErrNotFound)
		}
		return models.Violation{}, "", fmt.Errorf("lock violation: %w", classify(err))
	}
	from := v.Status
	if !from.CanTransitionTo(to) {
		return models.Violation{}, "", fmt.Errorf("violation %d %s -> %s: %w", id, from, to, sentinel.ErrInvalidState)
	}
	v.ApplyTransition(to, storedTime(now))

	if _, err := tx.ExecContext(ctx,
		`UPDATE violations SET status = $1, updated_at = $2 WHERE id = $3`,
		string(v.Status), v.UpdatedAt, v.ID,
	); err != nil {
		return models.Violation{}, "", fmt.Errorf("update violation status: %w", classify(err))
	}
	if err := tx.Commit(); err != nil {
		return models.Violation{}, "", fmt.Errorf("commit violation transition: %w", classify(err))
	}
	return v, from, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM violations)`).Scan(&exists); err != nil {
		return fmt.Errorf("probe violations table: %w", classify(err))
	}
	return nil
}

// beginWrite opens a transaction holding the writer advisory lock until
// commit or rollback.
func (s *Postgres) beginWrite(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin violation write: %w", classify(err))
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, writeLockKey); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("acquire violation write lock: %w", classify(err))
	}
	return tx, nil
}

func whereClause(f models.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value string) {
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	if f.Type != "" {
		add("violation_type", string(f.Type))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.Plate != "" {
		add("plate", f.Plate)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViolation(row rowScanner) (models.Violation, error) {
	var (
		v      models.Violation
		vtype  string
		status string
	)
	if err := row.Scan(
		&v.ID,
		&vtype,
		&v.Plate,
		&v.CameraID,
		&v.DetectedAt,
		&v.FineAmount,
		&v.RegistryVersion,
		&status,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return models.Violation{}, err
	}
	v.Type = models.ViolationType(vtype)
	v.Status = models.Status(status)
	v.DetectedAt = v.DetectedAt.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, nil
}

// storedTime reduces t to what TIMESTAMPTZ keeps, so the record returned by a
// write equals the one read back later.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// classify marks connection-class failures as sentinel.ErrUnavailable.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
