package testsupport

import (
	"context"
	"testing"
	"time"

	"quorum/internal/config"
	"quorum/internal/ident"
	"quorum/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewTask builds and persists a pending task owned by uid with the given
// assignees and threshold. The task carries fresh identifiers and timestamps.
func NewTask(t testing.TB, st *store.Store, uid ident.ID, threshold int, assignees ...ident.ID) *store.Task {
	t.Helper()

	now := time.Now().UnixMilli()
	task := &store.Task{
		UID:       uid,
		ID:        ident.New(),
		Status:    store.StatusProcessing,
		Kind:      "test",
		CreatedAt: now,
		UpdatedAt: now,
		Threshold: threshold,
		Assignees: assignees,
		Message:   "test task",
	}
	if err := st.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("store.InsertTask: %v", err)
	}
	return task
}
