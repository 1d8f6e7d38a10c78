// Package snapshots keeps precomputed comparison reports for the preloaded
// portfolios so clients can read them without running the optimiser.
package snapshots

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/utils"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a stored comparison report.
type Snapshot struct {
	ID        string           `json:"id"`
	Portfolio string           `json:"portfolio"`
	CreatedAt time.Time        `json:"created_at"`
	Report    *analysis.Report `json:"report"`
}

// Summary describes a snapshot without its payload.
type Summary struct {
	ID        string    `json:"id"`
	Portfolio string    `json:"portfolio"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int       `json:"size_bytes"`
}

// Repository stores reports as msgpack blobs in report_snapshots.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a repository on the snapshots database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

func encode(report *analysis.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(payload []byte) (*analysis.Report, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("json")

	var report analysis.Report
	if err := dec.Decode(&report); err != nil {
		return nil, err
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	return &report, nil
}

// Save stores report under its portfolio name and returns the new snapshot.
func (r *Repository) Save(ctx context.Context, report *analysis.Report) (*Snapshot, error) {
	if report == nil || report.Portfolio.Name == "" {
		return nil, fmt.Errorf("report must name its portfolio")
	}

	payload, err := encode(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	snap := &Snapshot{
		ID:        uuid.NewString(),
		Portfolio: report.Portfolio.Name,
		CreatedAt: time.Now().UTC(),
		Report:    report,
	}

	done := utils.MeasureDBQuery("save_snapshot", r.log)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO report_snapshots (id, portfolio, created_at, payload)
		VALUES (?, ?, ?, ?)
	`, snap.ID, snap.Portfolio, snap.CreatedAt.UnixNano(), payload)
	done(1)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot for %s: %w", snap.Portfolio, err)
	}

	r.log.Debug().
		Str("portfolio", snap.Portfolio).
		Str("id", snap.ID).
		Int("bytes", len(payload)).
		Msg("Snapshot saved")
	return snap, nil
}

// Latest returns the newest snapshot of the named portfolio.
func (r *Repository) Latest(ctx context.Context, portfolio string) (*Snapshot, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, portfolio, created_at, payload
		FROM report_snapshots
		WHERE portfolio = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, portfolio))
}

// Get returns the snapshot with the given id.
func (r *Repository) Get(ctx context.Context, id string) (*Snapshot, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, portfolio, created_at, payload
		FROM report_snapshots
		WHERE id = ?
	`, id))
}

func (r *Repository) scanOne(row *sql.Row) (*Snapshot, error) {
	var (
		snap    Snapshot
		created int64
		payload []byte
	)
	if err := row.Scan(&snap.ID, &snap.Portfolio, &created, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	report, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", snap.ID, err)
	}
	snap.CreatedAt = time.Unix(0, created).UTC()
	snap.Report = report
	return &snap, nil
}

// List returns the newest snapshot of every portfolio, ordered by name.
func (r *Repository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, portfolio, created_at, length(payload)
		FROM (
			SELECT id, portfolio, created_at, payload,
				ROW_NUMBER() OVER (PARTITION BY portfolio ORDER BY created_at DESC, rowid DESC) AS rn
			FROM report_snapshots
		)
		WHERE rn = 1
		ORDER BY portfolio
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s       Summary
			created int64
		)
		if err := rows.Scan(&s.ID, &s.Portfolio, &created, &s.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots of portfolio.
func (r *Repository) Prune(ctx context.Context, portfolio string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM report_snapshots
		WHERE portfolio = ? AND id NOT IN (
			SELECT id FROM report_snapshots
			WHERE portfolio = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)
	`, portfolio, portfolio, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots for %s: %w", portfolio, err)
	}
	return res.RowsAffected()
}
