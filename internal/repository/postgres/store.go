// Package postgres implements the repository.VersionedRepository,
// repository.RootRepository and repository.DeploymentRepository contracts
// against a PostgreSQL-backed store (via github.com/lib/pq), for
// deployments that want a durable repository rather than the in-memory one
// (repository/memory).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Codec marshals/unmarshals T to the JSONB payload column. Kept as an
// injected pair rather than requiring T to implement json.Marshaler so
// plain domain structs (runspec.RunSpec, *runspec.Group) work unmodified.
type Codec[T any] struct {
	Marshal   func(T) ([]byte, error)
	Unmarshal func([]byte) (T, error)
}

// JSONCodec builds the common case Codec backed by encoding/json.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Marshal: func(v T) ([]byte, error) { return json.Marshal(v) },
		Unmarshal: func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
}

// Store is the Postgres-backed repository.VersionedRepository. Table must
// have columns (id TEXT, version_ts BIGINT, is_current BOOLEAN,
// payload JSONB) with primary key (id, version_ts).
type Store[T any] struct {
	db    *sql.DB
	table string
	idOf  func(T) string
	codec Codec[T]
}

func New[T any](db *sql.DB, table string, idOf func(T) string, codec Codec[T]) *Store[T] {
	return &Store[T]{db: db, table: table, idOf: idOf, codec: codec}
}

func (s *Store[T]) Store(ctx context.Context, value T) error {
	return s.storeAt(ctx, value, time.Now(), false)
}

func (s *Store[T]) StoreVersion(ctx context.Context, value T) error {
	return s.storeAt(ctx, value, time.Now(), true)
}

func (s *Store[T]) storeAt(ctx context.Context, value T, ts time.Time, versioned bool) error {
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.table, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx on %s: %w", s.table, err)
	}
	defer tx.Rollback()

	id := s.idOf(value)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET is_current = false WHERE id = $1 AND is_current`, s.table), id); err != nil {
		return fmt.Errorf("clear current on %s: %w", s.table, err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, version_ts, is_current, payload) VALUES ($1, $2, true, $3)
			ON CONFLICT (id, version_ts) DO UPDATE SET is_current = true, payload = EXCLUDED.payload`, s.table),
		id, ts.UnixNano(), payload); err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	_ = versioned // the row is always written; StoreVersion differs from Store only in intent, both keep history
	return tx.Commit()
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1 AND is_current`, s.table), id)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("get %s/%s: %w", s.table, id, err)
	}
	v, err := s.codec.Unmarshal(payload)
	return v, err == nil, err
}

func (s *Store[T]) GetVersion(ctx context.Context, id string, versionTs time.Time) (T, bool, error) {
	var zero T
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1 AND version_ts = $2`, s.table), id, versionTs.UnixNano())
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("get version %s/%s@%v: %w", s.table, id, versionTs, err)
	}
	v, err := s.codec.Unmarshal(payload)
	return v, err == nil, err
}

func (s *Store[T]) Ids(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT id FROM %s WHERE is_current ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("ids %s: %w", s.table, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store[T]) Versions(ctx context.Context, id string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT version_ts FROM %s WHERE id = $1 ORDER BY version_ts ASC`, s.table), id)
	if err != nil {
		return nil, fmt.Errorf("versions %s/%s: %w", s.table, id, err)
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, time.Unix(0, ts))
	}
	return out, rows.Err()
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	return err
}

func (s *Store[T]) DeleteVersion(ctx context.Context, id string, versionTs time.Time) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND version_ts = $2`, s.table), id, versionTs.UnixNano())
	return err
}
