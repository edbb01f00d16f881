package postgres

import (
	"context"
	"database/sql"
	"time"
)

// rootKey is the fixed id under which the single root group is stored; a
// control plane has exactly one root at a time, versioned over time.
const rootKey = "root"

// RootStore adapts Store[R] to repository.RootRepository by fixing the id
// to rootKey.
type RootStore[R any] struct {
	inner *Store[R]
}

func NewRootStore[R any](db *sql.DB, table string, codec Codec[R]) *RootStore[R] {
	return &RootStore[R]{inner: New[R](db, table, func(R) string { return rootKey }, codec)}
}

func (s *RootStore[R]) Root(ctx context.Context) (R, bool, error) {
	return s.inner.Get(ctx, rootKey)
}

func (s *RootStore[R]) RootVersions(ctx context.Context) ([]time.Time, error) {
	return s.inner.Versions(ctx, rootKey)
}

func (s *RootStore[R]) RootVersion(ctx context.Context, ts time.Time) (R, bool, error) {
	return s.inner.GetVersion(ctx, rootKey, ts)
}

// StoreRoot persists root under a fresh version. Per-app/pod row updates
// are expected to be issued by the caller against their own Store[RunSpec]
// instances within the same SQL transaction in a full implementation; this
// adapter covers the root table itself.
func (s *RootStore[R]) StoreRoot(ctx context.Context, root R, _, _, _, _ []string) error {
	return s.inner.StoreVersion(ctx, root)
}

func (s *RootStore[R]) DeleteRootVersion(ctx context.Context, ts time.Time) error {
	return s.inner.DeleteVersion(ctx, rootKey, ts)
}
