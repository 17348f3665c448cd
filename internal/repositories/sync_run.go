package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/likesync/internal/models"
	"github.com/desertthunder/likesync/internal/shared"
)

const syncRunColumns = `id, sequence, playlist_name, playlist_id, mode, status, dry_run, liked_count, existing_count,
	tracks_added, tracks_removed, error_message, started_at, completed_at, created_at, updated_at`

// SyncRunRepository implements models.Repository[*models.SyncRun] for sync history.
//
// It also satisfies tasks.RunRecorder, so a sync engine can record runs directly.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a run with the next sequence number. An ID is generated when the run has none.
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	if run.ID() == "" {
		run.SetID(shared.GenerateID())
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.SetSequence(sequence)

	query := `INSERT INTO sync_runs (` + syncRunColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		run.ID(),
		sequence,
		run.PlaylistName,
		nullString(run.PlaylistID),
		string(run.Mode),
		string(run.Status),
		run.DryRun,
		run.LikedCount,
		run.ExistingCount,
		run.TracksAdded,
		run.TracksRemoved,
		nullString(run.ErrorMessage),
		run.StartedAt,
		nullTime(run.CompletedAt),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *SyncRunRepository) Get(id string) (*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanSyncRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSyncRunNotFound, id)
	}
	return run, err
}

// Update writes the mutable fields of a run: outcome, counts, and resolved playlist.
func (r *SyncRunRepository) Update(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE sync_runs
		SET playlist_id = ?, mode = ?, status = ?, liked_count = ?, existing_count = ?,
			tracks_added = ?, tracks_removed = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		nullString(run.PlaylistID),
		string(run.Mode),
		string(run.Status),
		run.LikedCount,
		run.ExistingCount,
		run.TracksAdded,
		run.TracksRemoved,
		nullString(run.ErrorMessage),
		nullTime(run.CompletedAt),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	return expectOne(result, run.ID())
}

// Delete soft-deletes a run by ID
func (r *SyncRunRepository) Delete(id string) error {
	query := `UPDATE sync_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}

	return expectOne(result, id)
}

// List retrieves runs matching criteria, most recent first, excluding soft-deleted runs.
//
// Supported criteria: "playlist_name" (string), "status" (string or models.RunStatus), "limit" (int).
func (r *SyncRunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE deleted_at IS NULL`
	args := []any{}

	if name, ok := criteria["playlist_name"].(string); ok && name != "" {
		query += " AND playlist_name = ?"
		args = append(args, name)
	}

	switch status := criteria["status"].(type) {
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	case models.RunStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Start records a run as it begins.
func (r *SyncRunRepository) Start(run *models.SyncRun) error {
	return r.Create(run)
}

// Finish records the outcome of a run created by [SyncRunRepository.Start].
func (r *SyncRunRepository) Finish(run *models.SyncRun) error {
	return r.Update(run)
}

func scanSyncRun(row scanner) (*models.SyncRun, error) {
	var (
		id            string
		sequence      int
		playlistName  string
		playlistID    sql.NullString
		mode          string
		status        string
		dryRun        bool
		likedCount    int
		existingCount int
		tracksAdded   int
		tracksRemoved int
		errorMessage  sql.NullString
		startedAt     time.Time
		completedAt   sql.NullTime
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(&id, &sequence, &playlistName, &playlistID, &mode, &status, &dryRun, &likedCount, &existingCount,
		&tracksAdded, &tracksRemoved, &errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	run := models.RestoreSyncRun(id, sequence, createdAt, updatedAt)
	run.PlaylistName = playlistName
	run.PlaylistID = playlistID.String
	run.Mode = models.SyncMode(mode)
	run.Status = models.RunStatus(status)
	run.DryRun = dryRun
	run.LikedCount = likedCount
	run.ExistingCount = existingCount
	run.TracksAdded = tracksAdded
	run.TracksRemoved = tracksRemoved
	run.ErrorMessage = errorMessage.String
	run.StartedAt = startedAt
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return run, nil
}

func expectOne(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSyncRunNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ models.Repository[*models.SyncRun] = (*SyncRunRepository)(nil)
