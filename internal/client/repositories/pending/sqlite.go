package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/dbx"
)

var tables = map[models.Kind]string{
	models.KindMeals:    "pending_meals",
	models.KindWorkouts: "pending_workouts",
}

const columns = `local_id, temp_id, payload, synced, state, server_id, attempts, last_error, created_at, updated_at`

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func table(kind models.Kind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return t, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.PendingRecord) (int64, error) {
	t, err := table(rec.Kind)
	if err != nil {
		return 0, err
	}

	now := r.now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (temp_id, payload, synced, state, attempts, created_at, updated_at)
		VALUES (?, ?, 0, ?, 0, ?, ?)`, t)

	res, err := r.db.ExecContext(ctx, query, rec.TempID, []byte(rec.Payload), string(models.StatePending),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s record: %w", rec.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted id: %w", err)
	}

	rec.LocalID = id
	rec.Synced = false
	rec.State = models.StatePending
	rec.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	rec.UpdatedAt = rec.CreatedAt
	return id, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, kind models.Kind, localID int64) (*models.PendingRecord, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE local_id = ?`, columns, t), localID)

	rec, err := scanRecord(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record %d: %w", kind, localID, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, kind models.Kind) ([]*models.PendingRecord, error) {
	return r.list(ctx, kind, "")
}

func (r *SQLiteRepository) GetAllUnsynced(ctx context.Context, kind models.Kind) ([]*models.PendingRecord, error) {
	return r.list(ctx, kind, "WHERE synced = 0")
}

func (r *SQLiteRepository) list(ctx context.Context, kind models.Kind, where string) ([]*models.PendingRecord, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY local_id`, columns, t, where))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s records: %w", kind, err)
	}
	defer rows.Close()

	result := make([]*models.PendingRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", kind, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Claim(ctx context.Context, kind models.Kind, localID int64) (bool, error) {
	t, err := table(kind)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET state = ?, updated_at = ? WHERE local_id = ? AND synced = 0 AND state = ?`, t),
		string(models.StateDelivering), r.now().UTC().UnixMilli(), localID, string(models.StatePending))
	if err != nil {
		return false, fmt.Errorf("failed to claim %s record %d: %w", kind, localID, err)
	}
	return dbx.AffectedOne(res)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, kind models.Kind, localID int64, serverID string) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET synced = 1, state = ?, server_id = ?, last_error = NULL, updated_at = ?
			WHERE local_id = ? AND state = ?`, t),
		string(models.StateSynced), serverID, r.now().UTC().UnixMilli(), localID, string(models.StateDelivering))
	if err != nil {
		return fmt.Errorf("failed to mark %s record %d synced: %w", kind, localID, err)
	}
	ok, err := dbx.AffectedOne(res)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return ErrNotClaimed
	}
	return nil
}

func (r *SQLiteRepository) Release(ctx context.Context, kind models.Kind, localID int64, lastErr string) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET state = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
			WHERE local_id = ? AND state = ?`, t),
		string(models.StatePending), lastErr, r.now().UTC().UnixMilli(), localID, string(models.StateDelivering))
	if err != nil {
		return fmt.Errorf("failed to release %s record %d: %w", kind, localID, err)
	}
	ok, err := dbx.AffectedOne(res)
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if !ok {
		return ErrNotClaimed
	}
	return nil
}

func (r *SQLiteRepository) ResetInFlight(ctx context.Context) (int64, error) {
	var total int64
	for _, kind := range models.Kinds {
		res, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET state = ? WHERE state = ?`, tables[kind]),
			string(models.StatePending), string(models.StateDelivering))
		if err != nil {
			return total, fmt.Errorf("failed to reset in-flight %s records: %w", kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func (r *SQLiteRepository) DeleteSynced(ctx context.Context, kind models.Kind) (int64, error) {
	t, err := table(kind)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE synced = 1`, t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete synced %s records: %w", kind, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context, kind models.Kind) (int, error) {
	t, err := table(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE synced = 0`, t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsynced %s records: %w", kind, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, kind models.Kind) (*models.PendingRecord, error) {
	var (
		rec                  models.PendingRecord
		payload              []byte
		state                string
		serverID, lastErr    sql.NullString
		createdAt, updatedAt int64
	)
	if err := s.Scan(&rec.LocalID, &rec.TempID, &payload, &rec.Synced, &state, &serverID,
		&rec.Attempts, &lastErr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Kind = kind
	rec.Payload = payload
	rec.State = models.State(state)
	rec.ServerID = serverID.String
	rec.LastError = lastErr.String
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}
