// Package repository defines the versioned store contracts every
// app/pod/root/deployment repository implementation must satisfy, plus
// the in-memory (repository/memory) and Postgres-backed
// (repository/postgres) implementations.
package repository

import (
	"context"
	"time"
)

// VersionedRepository is the generic store contract for apps and pods:
// current values plus an append-only version history.
type VersionedRepository[T any] interface {
	// Store replaces the current value for the id embedded in value.
	Store(ctx context.Context, value T) error
	// StoreVersion additionally appends value to the version history.
	StoreVersion(ctx context.Context, value T) error
	Get(ctx context.Context, id string) (T, bool, error)
	GetVersion(ctx context.Context, id string, versionTs time.Time) (T, bool, error)
	Ids(ctx context.Context) ([]string, error)
	// Versions returns the version timestamps for id, oldest first.
	// Modeled as a slice here since the in-memory and Postgres backends
	// both materialize cheaply at the scale GC scans operate on; a
	// streaming iterator isn't warranted.
	Versions(ctx context.Context, id string) ([]time.Time, error)
	Delete(ctx context.Context, id string) error
	DeleteVersion(ctx context.Context, id string, versionTs time.Time) error
}

// RootRepository adds the root-group-specific operations.
type RootRepository[R any] interface {
	Root(ctx context.Context) (R, bool, error)
	RootVersions(ctx context.Context) ([]time.Time, error)
	RootVersion(ctx context.Context, ts time.Time) (R, bool, error)
	// StoreRoot persists root as the current root and a new root version.
	// The id lists name the apps/pods the update touched; the in-memory and
	// Postgres implementations accept them but write no app/pod rows, so
	// callers store run-spec versions through their own
	// VersionedRepository and the two writes are not atomic.
	StoreRoot(ctx context.Context, root R, updatedAppIds, deletedAppIds, updatedPodIds, deletedPodIds []string) error
	DeleteRootVersion(ctx context.Context, ts time.Time) error
}

// DeploymentRepository is the deployment-plan store.
type DeploymentRepository[P any] interface {
	Store(ctx context.Context, plan P) error
	Delete(ctx context.Context, planId string) error
	All(ctx context.Context) ([]P, error)
}
