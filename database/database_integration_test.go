package database

import (
	"context"
	"os"
	"testing"
	"time"

	"civicreport/config"
	"civicreport/models"

	"github.com/google/uuid"
)

func integrationDB(t *testing.T) *Database {
	t.Helper()
	if os.Getenv("RUN_DB_TESTS") != "1" {
		t.Skip("skipping DB integration test (set RUN_DB_TESTS=1 to enable)")
	}

	cfg := &config.Config{
		DBHost:     "localhost",
		DBPort:     "3306",
		DBUser:     "server",
		DBPassword: "secret_app",
		DBName:     "civicreport",
	}

	d, err := NewDatabase(cfg)
	if err != nil {
		t.Skipf("Skipping test - database not available: %v", err)
	}
	return d
}

func TestEnsureTablesIntegration(t *testing.T) {
	d := integrationDB(t)
	defer d.Close()

	if err := d.EnsureTables(); err != nil {
		t.Errorf("Failed to ensure tables: %v", err)
	}
}

func TestAppendAndReadBackIntegration(t *testing.T) {
	d := integrationDB(t)
	defer d.Close()

	if err := d.EnsureTables(); err != nil {
		t.Skipf("Skipping test - cannot ensure tables: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	r := models.Report{
		ID:           uuid.NewString(),
		Kind:         models.KindIncident,
		Title:        "Integration test report",
		Description:  "Created by the integration test",
		Latitude:     38.736946,
		Longitude:    -9.142685,
		AuthorID:     "integration-test",
		Status:       models.StatusUnknown,
		Priority:     models.PriorityLow,
		LastReported: now,
		Updates: []models.ReportUpdate{
			{Text: "Created by the integration test", AuthorID: "integration-test", Timestamp: now},
		},
	}

	if _, err := d.Append(ctx, r); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := d.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Kind != r.Kind || got.AuthorID != r.AuthorID {
		t.Errorf("read back %+v, expected kind/author of %+v", got, r)
	}
	if len(got.Updates) != 1 {
		t.Errorf("got %d updates, expected 1", len(got.Updates))
	}

	// Appending the same id again must conflict.
	if _, err := d.Append(ctx, r); err == nil {
		t.Error("expected conflict when appending an existing id")
	}
}

func TestLogNotificationIntegration(t *testing.T) {
	d := integrationDB(t)
	defer d.Close()

	if err := d.EnsureTables(); err != nil {
		t.Skipf("Skipping test - cannot ensure tables: %v", err)
	}

	err := d.LogNotification(context.Background(), models.EventNewHighPriority, uuid.NewString(), "integration-test")
	if err != nil {
		t.Errorf("LogNotification() error = %v", err)
	}
}
