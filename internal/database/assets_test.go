package database

import (
	"context"
	"testing"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	m.Run()
}

func TestListHistoryReturnsRecentWindowChronologically(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// The query trims old points by selecting newest first; rows arrive in
	// that order.
	rows := sqlmock.NewRows([]string{"id", "asset_id", "price", "market_cap", "volume", "captured_at"}).
		AddRow("p3", "a1", 47000.0, 0.0, 0.0, base.Add(2*time.Hour)).
		AddRow("p2", "a1", 46000.0, 0.0, 0.0, base.Add(time.Hour))

	mock.ExpectQuery(`ORDER BY captured_at DESC`).
		WithArgs("a1", 2).
		WillReturnRows(rows)

	points, err := store.ListHistory(context.Background(), "a1", 2)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	// Callers get the window back oldest to newest.
	if points[0].ID != "p2" || points[1].ID != "p3" {
		t.Errorf("order = [%s %s], want [p2 p3]", points[0].ID, points[1].ID)
	}
	if !points[0].CapturedAt.Before(points[1].CapturedAt) {
		t.Error("points are not in chronological order")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
