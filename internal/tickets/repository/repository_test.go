package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ticketchain/internal/tickets/domain"
	"ticketchain/platform/apperr"
)

func unix(day, hour int) *int64 {
	v := time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC).Unix()
	return &v
}

func openTicketDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&ticketRow{}, &linkChainRow{}, &postRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rows := []ticketRow{
		{TicketID: 2399922, Subject: "P1 Install", TicketStatusTitle: "Open", Dateline: unix(1, 9), DepartmentTitle: "Dispatch", TicketTypeTitle: "Service Request", FullName: "Harbor Clinic"},
		{TicketID: 3400101, Subject: "Turnup for Dispatch #2399922", TicketStatusTitle: "Closed", Dateline: unix(2, 10), ResolutionDateline: unix(2, 18), DepartmentTitle: "Turnups", TicketTypeTitle: "Turnup", FullName: "Alice"},
		{TicketID: 3400102, Subject: "Revisit", TicketStatusTitle: "Scheduled", DepartmentTitle: "Turnups", TicketTypeTitle: "Turnup", FullName: "Bob"},
		{TicketID: 3400103, Subject: "Vendor visit", DepartmentTitle: "Turnups", TicketTypeTitle: domain.ExcludedTicketType},
		{TicketID: 4100001, Subject: "Project", DepartmentTitle: domain.ProjectDepartment, TicketTypeTitle: "Project"},
		{TicketID: 4100002, Subject: "Billing", DepartmentTitle: "Finance", TicketTypeTitle: "Invoice"},
		{TicketID: 4100003, Subject: "Helpdesk", DepartmentTitle: "Helpdesk Tier 1"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed tickets: %v", err)
	}

	links := []linkChainRow{
		{TicketID: 2399922, ChainHash: "CH-77", Dateline: unix(1, 9)},
		{TicketID: 3400101, ChainHash: "CH-77", Dateline: unix(2, 10)},
		// Linked twice, so the join returns it twice.
		{TicketID: 3400101, ChainHash: "CH-77", Dateline: unix(2, 11)},
		{TicketID: 3400102, ChainHash: "CH-77", Dateline: unix(3, 9)},
		{TicketID: 3400103, ChainHash: "CH-77", Dateline: unix(3, 9)},
		{TicketID: 4100001, ChainHash: "CH-77", Dateline: unix(1, 8)},
		{TicketID: 4100002, ChainHash: "CH-77", Dateline: unix(4, 8)},
		{TicketID: 4100003, ChainHash: "CH-77", Dateline: unix(4, 9)},
	}
	if err := db.Create(&links).Error; err != nil {
		t.Fatalf("seed links: %v", err)
	}

	posts := []postRow{
		{TicketID: 3400101, Contents: "Arrived on site.", FullName: "Alice", Dateline: unix(2, 10)},
		{TicketID: 3400101, Contents: "Missing SFP modules.", FullName: "Alice", Dateline: unix(2, 12)},
		{TicketID: 3400101, Contents: "Left site, revisit needed.", FullName: "Alice", Dateline: unix(2, 18), IsPrivate: true},
	}
	if err := db.Create(&posts).Error; err != nil {
		t.Fatalf("seed posts: %v", err)
	}
	return db
}

func TestSQLSourceGetTicketByID(t *testing.T) {
	db := openTicketDB(t)
	ctx := context.Background()
	turnups := NewSQLSource(db, domain.CategoryTurnup, 2)

	got, err := turnups.GetTicketByID(ctx, "3400101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ChainID != "CH-77" || got.Category != domain.CategoryTurnup || got.Technician != "Alice" {
		t.Fatalf("unexpected ticket %+v", got)
	}
	if got.CreatedAt == nil || got.ClosedAt == nil || got.UpdatedAt != nil {
		t.Fatalf("expected created and closed timestamps only, got %+v", got)
	}
	if len(got.Notes) != 2 {
		t.Fatalf("expected posts capped at 2, got %d", len(got.Notes))
	}
	if got.Description != "Arrived on site." || got.ResolutionNotes != "Missing SFP modules." {
		t.Fatalf("expected first and last kept posts as description and resolution, got %q / %q", got.Description, got.ResolutionNotes)
	}

	notFound := []struct {
		source *SQLSource
		id     string
	}{
		{NewSQLSource(db, domain.CategoryDispatch, 5), "3400101"},
		{turnups, "3400103"},
		{turnups, "abc"},
		{turnups, "9999999"},
	}
	for _, tt := range notFound {
		if _, err := tt.source.GetTicketByID(ctx, tt.id); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("%s in %s: expected not found, got %v", tt.id, tt.source.Category(), err)
		}
	}
}

func TestSQLSourceGetTicketsByChain(t *testing.T) {
	db := openTicketDB(t)
	turnups := NewSQLSource(db, domain.CategoryTurnup, 5)

	got, err := turnups.GetTicketsByChain(context.Background(), "CH-77")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := make([]string, 0, len(got))
	for _, tk := range got {
		ids = append(ids, tk.ID)
	}
	want := []string{"3400101", "3400101", "3400102"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v (duplicates kept, third party excluded), got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestSQLSourceCountPeripheral(t *testing.T) {
	db := openTicketDB(t)
	counts, err := NewSQLSource(db, domain.CategoryDispatch, 5).CountPeripheral(context.Background(), "CH-77")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Project != 1 || counts.Other != 1 {
		t.Fatalf("expected one project and one other ticket, got %+v", counts)
	}
}

func TestSourcesLookup(t *testing.T) {
	ctx := context.Background()
	dispatch := NewMemorySource(domain.CategoryDispatch, domain.Ticket{ID: "1", ChainID: "C"})
	turnups := NewMemorySource(domain.CategoryTurnup, domain.Ticket{ID: "2", ChainID: "C"})
	repo := NewSources(dispatch, turnups)

	got, err := repo.GetTicketByID(ctx, "2")
	if err != nil || got.Category != domain.CategoryTurnup {
		t.Fatalf("expected turnup 2, got %+v, %v", got, err)
	}
	if _, err := repo.GetTicketByID(ctx, "3"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	turnups.FailWith(errors.New("connection refused"))
	if _, err := repo.GetTicketByID(ctx, "3"); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable when a source is down and the ticket is missing, got %v", err)
	}
	if _, err := repo.GetTicketByID(ctx, "1"); err != nil {
		t.Fatalf("expected dispatch lookup unaffected, got %v", err)
	}
	if _, err := repo.GetTicketsByChain(ctx, "C", domain.CategoryTurnup); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable chain query, got %v", err)
	}
}
