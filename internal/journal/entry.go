package journal

import (
	"fmt"
	"time"

	"github.com/ayusman/facewatch/internal/events"
)

// Entry is one journaled event.
type Entry struct {
	ID       string      `json:"id"`
	Kind     events.Kind `json:"kind"`
	Seq      uint64      `json:"seq"`
	At       time.Time   `json:"at"`
	HasImage bool        `json:"has_image"`
}

// Record appends e to the log and trims rows beyond the retention bound.
func (j *Journal) Record(e events.Event) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO events (id, kind, frame, at_ns, has_image) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Kind.String(), int64(e.Seq), e.At.UnixNano(), len(e.Image) > 0,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	_, err = tx.Exec(
		`DELETE FROM events WHERE row_id <= (SELECT MAX(row_id) FROM events) - ?`,
		j.maxRows,
	)
	if err != nil {
		return fmt.Errorf("trim events: %w", err)
	}

	return tx.Commit()
}

// Handle records e and logs failures. It has the events.Handler signature.
func (j *Journal) Handle(e events.Event) {
	if err := j.Record(e); err != nil {
		j.log.WithError(err).WithField("kind", e.Kind).Warn("failed to journal event")
	}
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns
// everything retained.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = j.maxRows
	}

	rows, err := j.db.Query(
		`SELECT id, kind, frame, at_ns, has_image
		 FROM events ORDER BY row_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			kind     string
			frame    int64
			atNanos  int64
			hasImage bool
		)
		if err := rows.Scan(&e.ID, &kind, &frame, &atNanos, &hasImage); err != nil {
			return nil, err
		}
		if e.Kind, err = events.ParseKind(kind); err != nil {
			return nil, err
		}
		e.Seq = uint64(frame)
		e.At = time.Unix(0, atNanos)
		e.HasImage = hasImage
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Counts returns the number of retained events per kind. Kinds with no
// events are omitted.
func (j *Journal) Counts() (map[events.Kind]int, error) {
	rows, err := j.db.Query(`SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[events.Kind]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		kind, err := events.ParseKind(name)
		if err != nil {
			return nil, err
		}
		counts[kind] = n
	}

	return counts, rows.Err()
}

// Len returns the number of retained events.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
