package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/roborun/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	startEvent := history.Event{
		Type:       history.EventJobStarted,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			JobID:      "42871",
			Repository: "https://example.com/user/code.git",
			OutputDir:  "/data/out",
		},
	}
	if err := sink.Send(ctx, startEvent); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	finishEvent := startEvent
	finishEvent.Type = history.EventJobFinished
	finishEvent.Record.Status = "success"
	finishEvent.Record.TriggerRole = "user_code"
	finishEvent.Record.DurationMS = 90000
	if err := sink.Send(ctx, finishEvent); err != nil {
		t.Fatalf("Failed to send finish event: %v", err)
	}

	n, err := sink.CountEvents(ctx, "42871")
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 events, got %d", n)
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
