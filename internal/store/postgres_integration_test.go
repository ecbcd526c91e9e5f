//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/facerecog/internal/descriptor"
)

// setupTestPool is grounded on the teacher's internal/database/postgres
// package's setupTestContainer: a throwaway Postgres container, skipped
// (not failed) when Docker isn't available, migrated once per test.
func setupTestPool(t *testing.T) (*Pool, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "facerecog_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}

	url := fmt.Sprintf("postgres://test:test@%s:%s/facerecog_test?sslmode=disable", host, port.Port())

	pool, err := NewPool(PoolConfig{URL: url})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("opening pool: %v", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("running migrations: %v", err)
	}

	return pool, func() {
		_ = pool.Close()
		_ = container.Terminate(ctx)
	}
}

func testDescriptor(seed float32) descriptor.Descriptor {
	d := make(descriptor.Descriptor, descriptor.Dim)
	for i := range d {
		d[i] = seed
	}
	return d
}

func TestStore_CreateFindUpdateSoftDelete(t *testing.T) {
	pool, cleanup := setupTestPool(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	s := New(pool)

	id, err := s.Create(ctx, User{ExternalID: "alice", DisplayName: "Alice", Descriptor: testDescriptor(0.1), Confidence: 0.9})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Create(ctx, User{ExternalID: "alice", Descriptor: testDescriptor(0.2)}); err == nil {
		t.Error("expected duplicate externalId to be rejected")
	}

	got, err := s.FindByExternalID(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if got.UserID != id {
		t.Errorf("expected id %d, got %d", id, got.UserID)
	}

	if err := s.UpdateDescriptor(ctx, id, testDescriptor(0.3), 0.8, time.Now()); err != nil {
		t.Fatalf("UpdateDescriptor: %v", err)
	}
	updated, err := s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if updated.Descriptor[0] != 0.3 {
		t.Errorf("expected updated descriptor value 0.3, got %v", updated.Descriptor[0])
	}

	if err := s.TouchRecognition(ctx, id, time.Now()); err != nil {
		t.Fatalf("TouchRecognition: %v", err)
	}
	if err := s.AppendLog(ctx, LogEvent{UserID: &id, Event: "recognize", Outcome: "match"}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active user, got %d", len(active))
	}
	if active[0].RecognitionCount != 1 {
		t.Errorf("expected recognitionCount 1 after TouchRecognition, got %d", active[0].RecognitionCount)
	}

	count, err := s.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 1 {
		t.Errorf("expected CountActive 1, got %d", count)
	}

	if err := s.SoftDelete(ctx, id); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := s.FindByExternalID(ctx, "alice"); err == nil {
		t.Error("expected soft-deleted user to no longer resolve by externalId")
	}
}

func TestStore_UpdateDescriptorUnknownUserIsNotFound(t *testing.T) {
	pool, cleanup := setupTestPool(t)
	if pool == nil {
		return
	}
	defer cleanup()

	s := New(pool)
	if err := s.UpdateDescriptor(context.Background(), 999999, testDescriptor(0.1), 0.5, time.Now()); err == nil {
		t.Error("expected error updating a nonexistent user")
	}
}
