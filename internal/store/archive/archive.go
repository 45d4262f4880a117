package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store 把每个导入批次的原始行归档成独立的 SQLite 文件，
// 券商特有字段不经裁剪地保留，供日后重新解析或对账。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// Manifest 记录单个批次文件的归档统计。
type Manifest struct {
	BatchID    string `json:"batch_id"`
	Filename   string `json:"filename"`
	Broker     string `json:"broker"`
	Rows       int64  `json:"rows"`
	ArchivedAt int64  `json:"archived_at"`
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("archive root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(batchID string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[batchID]; ok {
		return db, nil
	}
	path := filepath.Join(s.root, batchID+".db")
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS manifest (
	batch_id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	broker TEXT NOT NULL,
	rows INTEGER NOT NULL,
	archived_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS raw_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	row_index INTEGER NOT NULL,
	data TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	s.dbs[batchID] = db
	return db, nil
}

// Archive 把一个批次的原始行写入归档文件。
// 每行以 JSON 形式保留全部原始列。
func (s *Store) Archive(ctx context.Context, m Manifest, rows []map[string]string) error {
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("archive batch id cannot be empty")
	}
	db, err := s.db(m.BatchID)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding row %d failed: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO raw_rows(row_index, data) VALUES(?, ?)`, i, string(raw)); err != nil {
			return err
		}
	}
	m.Rows = int64(len(rows))
	m.ArchivedAt = time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO manifest(batch_id, filename, broker, rows, archived_at) VALUES(?, ?, ?, ?, ?)`,
		m.BatchID, m.Filename, m.Broker, m.Rows, m.ArchivedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ReadManifest 读取某批次的归档统计，不存在时返回 (zero, false)。
func (s *Store) ReadManifest(ctx context.Context, batchID string) (Manifest, bool, error) {
	db, err := s.db(batchID)
	if err != nil {
		return Manifest{}, false, err
	}
	var m Manifest
	row := db.QueryRowContext(ctx,
		`SELECT batch_id, filename, broker, rows, archived_at FROM manifest WHERE batch_id = ?`, batchID)
	if err := row.Scan(&m.BatchID, &m.Filename, &m.Broker, &m.Rows, &m.ArchivedAt); err != nil {
		if err == sql.ErrNoRows {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, err
	}
	return m, true, nil
}

// ReadRows 返回某批次归档的全部原始行。
func (s *Store) ReadRows(ctx context.Context, batchID string) ([]map[string]string, error) {
	db, err := s.db(batchID)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT data FROM raw_rows ORDER BY row_index ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var row map[string]string
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("decoding archived row failed: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
