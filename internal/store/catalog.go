package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Device struct {
	Room     string    `json:"kid_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type SnapshotRecord struct {
	ID         int64     `json:"id"`
	Room       string    `json:"room"`
	ChildID    string    `json:"kid_id"`
	File       string    `json:"file"`
	MIME       string    `json:"mime"`
	Size       int64     `json:"size"`
	CapturedAt time.Time `json:"captured_at"`
}

// ResetStatuses marks every device offline. Run at startup: no connection
// survives a restart.
func (s *Store) ResetStatuses(ctx context.Context) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "UPDATE devices SET status = ? WHERE status != ?", &sqlitex.ExecOptions{
		Args: []any{StatusOffline, StatusOffline},
	})
	if err != nil {
		return 0, fmt.Errorf("store: reset statuses: %w", err)
	}
	return conn.Changes(), nil
}

func (s *Store) SetDeviceStatus(ctx context.Context, room string, online bool, at time.Time) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	status := StatusOffline
	if online {
		status = StatusOnline
	}
	err = sqlitex.Execute(conn, `INSERT INTO devices (room, status, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(room) DO UPDATE SET status = excluded.status, last_seen = excluded.last_seen`,
		&sqlitex.ExecOptions{Args: []any{room, status, at.UnixMilli()}})
	if err != nil {
		return fmt.Errorf("store: set device %s %s: %w", room, status, err)
	}
	return nil
}

func (s *Store) Devices(ctx context.Context) ([]Device, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Device
	err = sqlitex.Execute(conn, "SELECT room, status, last_seen FROM devices ORDER BY room", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, Device{
				Room:     stmt.ColumnText(0),
				Status:   stmt.ColumnText(1),
				LastSeen: time.UnixMilli(stmt.ColumnInt64(2)).UTC(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	return out, nil
}

// AddSnapshot indexes an archived file and returns its id.
func (s *Store) AddSnapshot(ctx context.Context, rec SnapshotRecord) (id int64, err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		"INSERT INTO snapshots (room, kid_id, file, mime, size, captured_at) VALUES (?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{rec.Room, rec.ChildID, rec.File, rec.MIME, rec.Size, rec.CapturedAt.UnixMilli()}})
	if err != nil {
		return 0, fmt.Errorf("store: add snapshot %s: %w", rec.File, err)
	}
	return conn.LastInsertRowID(), nil
}

// Snapshots lists the newest snapshots first. An empty room lists all rooms.
func (s *Store) Snapshots(ctx context.Context, room string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []SnapshotRecord
	err = sqlitex.Execute(conn, `SELECT id, room, kid_id, file, mime, size, captured_at FROM snapshots
		WHERE ? = '' OR room = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{room, room, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, SnapshotRecord{
					ID:         stmt.ColumnInt64(0),
					Room:       stmt.ColumnText(1),
					ChildID:    stmt.ColumnText(2),
					File:       stmt.ColumnText(3),
					MIME:       stmt.ColumnText(4),
					Size:       stmt.ColumnInt64(5),
					CapturedAt: time.UnixMilli(stmt.ColumnInt64(6)).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	return out, nil
}
