package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// DeploymentStore adapts Store[P] to repository.DeploymentRepository.
type DeploymentStore[P any] struct {
	inner *Store[P]
	table string
	db    *sql.DB
	codec Codec[P]
}

func NewDeploymentStore[P any](db *sql.DB, table string, idOf func(P) string, codec Codec[P]) *DeploymentStore[P] {
	return &DeploymentStore[P]{inner: New[P](db, table, idOf, codec), table: table, db: db, codec: codec}
}

func (s *DeploymentStore[P]) Store(ctx context.Context, plan P) error {
	return s.inner.Store(ctx, plan)
}

func (s *DeploymentStore[P]) Delete(ctx context.Context, planId string) error {
	return s.inner.Delete(ctx, planId)
}

func (s *DeploymentStore[P]) All(ctx context.Context) ([]P, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT payload FROM %s WHERE is_current ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("all %s: %w", s.table, err)
	}
	defer rows.Close()
	var out []P
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		v, err := s.codec.Unmarshal(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
