package terrain

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"chunkloader/internal/world"
)

// SQLiteStore keeps generated chunks in a SQLite database with
// zstd-compressed height payloads.
type SQLiteStore struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS terrain_chunks (
			x INTEGER NOT NULL,
			z INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			payload BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (x, z)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &SQLiteStore{db: db, enc: enc, dec: dec}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, coord world.ChunkCoord) (*Chunk, bool, error) {
	var samples int
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT samples, payload FROM terrain_chunks WHERE x = ? AND z = ?`,
		coord.X, coord.Z,
	).Scan(&samples, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load chunk %v: %w", coord, err)
	}

	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress chunk %v: %w", coord, err)
	}
	if len(raw) != samples*samples*2 {
		return nil, false, fmt.Errorf("chunk %v payload has %d bytes, want %d", coord, len(raw), samples*samples*2)
	}
	chunk := NewChunk(coord, samples)
	for i := range chunk.Heights {
		chunk.Heights[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return chunk, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, chunk *Chunk) error {
	if chunk == nil {
		return nil
	}
	raw := make([]byte, len(chunk.Heights)*2)
	for i, h := range chunk.Heights {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(h))
	}
	payload := s.enc.EncodeAll(raw, nil)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO terrain_chunks (x, z, samples, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(x, z) DO UPDATE SET samples = excluded.samples, payload = excluded.payload, updated_at = excluded.updated_at`,
		chunk.Coord.X, chunk.Coord.Z, chunk.Samples, payload, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save chunk %v: %w", chunk.Coord, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, coord world.ChunkCoord) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM terrain_chunks WHERE x = ? AND z = ?`, coord.X, coord.Z); err != nil {
		return fmt.Errorf("delete chunk %v: %w", coord, err)
	}
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM terrain_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	s.dec.Close()
	encErr := s.enc.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return encErr
}
