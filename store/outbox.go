package store

import (
	"time"
)

// ExportMessage is a measurement export record waiting to be published.
type ExportMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueExport(topic string, payload []byte) error {
	_, err := db.Exec(db.Q(`INSERT INTO export_outbox (topic, payload) VALUES (?, ?)`), topic, payload)
	return err
}

// ListPendingExports returns unsent rows that have not exhausted their
// retry budget, oldest first.
func (db *DB) ListPendingExports(limit, maxRetries int) ([]*ExportMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, retries, created_at FROM export_outbox
		WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*ExportMessage
	for rows.Next() {
		var m ExportMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckExport(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE export_outbox SET sent_at=datetime('now','localtime') WHERE id=?`), id)
	return err
}

func (db *DB) IncrementExportRetries(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE export_outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}
