package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dukahub/go-followup-backend/internal/domain"
)

func newFollowupDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:followup_repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedRecord(t *testing.T, db *gorm.DB, rec domain.FollowupRecord) domain.FollowupRecord {
	t.Helper()
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed order %d: %v", rec.OrderID, err)
	}
	return rec
}

func TestCreateRecord_Error_NoTable(t *testing.T) {
	db := newFollowupDB(t /* no migrations */)
	rec, _, err := CreateRecord(context.Background(), db, 1, "a@example.com", "0712", []int64{5})
	if err == nil || rec != nil {
		t.Fatalf("expected error creating without table, got rec=%v err=%v", rec, err)
	}
}

func TestCreateRecord_Success_PersistsAndSetsFields(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})

	start := time.Now().UTC().Add(-time.Minute)
	rec, created, err := CreateRecord(context.Background(), db, 101, "jane@example.com", "0712345678", []int64{5, 9})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true for fresh order")
	}
	if rec.ID == 0 || rec.OrderID != 101 || rec.CustomerEmail != "jane@example.com" {
		t.Fatalf("unexpected fields: %+v", rec)
	}
	if rec.ProductIDs != "5,9" {
		t.Fatalf("ProductIDs = %q", rec.ProductIDs)
	}
	if rec.MessagesSent != 0 || rec.HasCommented || rec.LastMessageDate != nil {
		t.Fatalf("fresh record should have zeroed message state: %+v", rec)
	}
	if rec.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset/really old: %v", rec.CreatedAt)
	}
	// round-trip
	var got domain.FollowupRecord
	if err := db.First(&got, rec.ID).Error; err != nil {
		t.Fatalf("load created record: %v", err)
	}
	if got.OrderID != 101 || got.ProductIDs != "5,9" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestCreateRecord_Idempotent_ReturnsExisting(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})

	first, created, err := CreateRecord(context.Background(), db, 101, "jane@example.com", "0712", []int64{5})
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	// Same order again, even with different payload, must return the original.
	second, created, err := CreateRecord(context.Background(), db, 101, "other@example.com", "0799", []int64{7})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for duplicate order")
	}
	if second.ID != first.ID || second.CustomerEmail != "jane@example.com" {
		t.Fatalf("duplicate create must not overwrite: %+v", second)
	}

	var n int64
	if err := db.Model(&domain.FollowupRecord{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 row, got %d", n)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	if _, err := GetRecord(context.Background(), db, 999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseStatusFilter(t *testing.T) {
	cases := map[string]StatusFilter{
		"all":           FilterAll,
		" ALL ":         FilterAll,
		"commented":     FilterCommented,
		"not_commented": FilterNotCommented,
		"":              FilterNotCommented,
		"bogus":         FilterNotCommented,
	}
	for in, want := range cases {
		if got := ParseStatusFilter(in); got != want {
			t.Fatalf("ParseStatusFilter(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountRecords_Filters(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})

	seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})
	seedRecord(t, db, domain.FollowupRecord{OrderID: 2, CustomerEmail: "b@x.com", ProductIDs: "5"})
	seedRecord(t, db, domain.FollowupRecord{OrderID: 3, CustomerEmail: "c@x.com", ProductIDs: "5", HasCommented: true})

	ctx := context.Background()
	if n, _ := CountRecords(ctx, db, FilterAll); n != 3 {
		t.Fatalf("all = %d", n)
	}
	if n, _ := CountRecords(ctx, db, FilterCommented); n != 1 {
		t.Fatalf("commented = %d", n)
	}
	if n, _ := CountRecords(ctx, db, FilterNotCommented); n != 2 {
		t.Fatalf("not_commented = %d", n)
	}
}

func TestListRecordsPage_OrderAndPagination(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})

	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	// Most recently messaged first, never-messaged rows last.
	seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5", LastMessageDate: &t1})
	seedRecord(t, db, domain.FollowupRecord{OrderID: 2, CustomerEmail: "b@x.com", ProductIDs: "5", LastMessageDate: &t2})
	seedRecord(t, db, domain.FollowupRecord{OrderID: 3, CustomerEmail: "c@x.com", ProductIDs: "5"}) // never messaged

	list, err := ListRecordsPage(context.Background(), db, FilterAll, 0, 10)
	if err != nil {
		t.Fatalf("ListRecordsPage: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(list))
	}
	if list[0].OrderID != 2 || list[1].OrderID != 1 || list[2].OrderID != 3 {
		t.Fatalf("unexpected order: %d, %d, %d", list[0].OrderID, list[1].OrderID, list[2].OrderID)
	}

	// Pagination window
	page2, err := ListRecordsPage(context.Background(), db, FilterAll, 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].OrderID != 3 {
		t.Fatalf("unexpected page 2: %+v", page2)
	}
}

func TestIncrementMessages_BumpsAndStamps(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	updated, err := IncrementMessages(context.Background(), db, rec.ID, 4, now)
	if err != nil {
		t.Fatalf("IncrementMessages: %v", err)
	}
	if !updated {
		t.Fatalf("expected update to be applied")
	}

	got, err := GetRecord(context.Background(), db, rec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.MessagesSent != 1 {
		t.Fatalf("MessagesSent = %d", got.MessagesSent)
	}
	if got.LastMessageDate == nil || !got.LastMessageDate.Equal(now) {
		t.Fatalf("LastMessageDate = %v", got.LastMessageDate)
	}
}

func TestIncrementMessages_RefusesAtCap(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})

	ctx := context.Background()
	const maxSends = 4
	for i := 0; i < maxSends; i++ {
		updated, err := IncrementMessages(ctx, db, rec.ID, maxSends, time.Now().UTC())
		if err != nil || !updated {
			t.Fatalf("send %d: updated=%v err=%v", i+1, updated, err)
		}
	}

	updated, err := IncrementMessages(ctx, db, rec.ID, maxSends, time.Now().UTC())
	if err != nil {
		t.Fatalf("capped send: %v", err)
	}
	if updated {
		t.Fatalf("send beyond cap must be refused")
	}

	got, _ := GetRecord(ctx, db, rec.ID)
	if got.MessagesSent != maxSends {
		t.Fatalf("MessagesSent = %d, want %d", got.MessagesSent, maxSends)
	}
}

func TestIncrementMessages_RefusesCommentedAndMissing(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5", HasCommented: true})

	ctx := context.Background()
	updated, err := IncrementMessages(ctx, db, rec.ID, 4, time.Now().UTC())
	if err != nil || updated {
		t.Fatalf("commented row: updated=%v err=%v", updated, err)
	}

	updated, err = IncrementMessages(ctx, db, 999, 4, time.Now().UTC())
	if err != nil || updated {
		t.Fatalf("missing row: updated=%v err=%v", updated, err)
	}
}

func TestMarkCommented_ExactMatch(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "jane@example.com", ProductIDs: "5,9"})
	seedRecord(t, db, domain.FollowupRecord{OrderID: 2, CustomerEmail: "other@example.com", ProductIDs: "5"})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	matched, err := MarkCommented(context.Background(), db, "jane@example.com", 9, now)
	if err != nil {
		t.Fatalf("MarkCommented: %v", err)
	}
	if matched != 1 {
		t.Fatalf("matched = %d", matched)
	}

	got, _ := GetRecord(context.Background(), db, rec.ID)
	if !got.HasCommented {
		t.Fatalf("expected has_commented=true")
	}
	if got.CommentDate == nil || !got.CommentDate.Equal(now) {
		t.Fatalf("CommentDate = %v", got.CommentDate)
	}
	if got.CommentSource != domain.CommentSourceAuto {
		t.Fatalf("CommentSource = %q", got.CommentSource)
	}
}

func TestMarkCommented_ProductMembershipIsExact(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	// Product "5" must not match records holding "51" or "15".
	seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "51,15"})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 2, CustomerEmail: "a@x.com", ProductIDs: "4,5,6"})

	matched, err := MarkCommented(context.Background(), db, "a@x.com", 5, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkCommented: %v", err)
	}
	if matched != 1 {
		t.Fatalf("matched = %d, want exact-element match only", matched)
	}
	got, _ := GetRecord(context.Background(), db, rec.ID)
	if !got.HasCommented {
		t.Fatalf("expected the 4,5,6 record to match")
	}
}

func TestMarkCommented_CaseFallbackOnlyWhenExactMisses(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	exact := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "jane@example.com", ProductIDs: "5"})
	cased := seedRecord(t, db, domain.FollowupRecord{OrderID: 2, CustomerEmail: "Jane@Example.com", ProductIDs: "5"})

	ctx := context.Background()

	// Exact phase wins: only the byte-identical record flips.
	matched, err := MarkCommented(ctx, db, "jane@example.com", 5, time.Now().UTC())
	if err != nil || matched != 1 {
		t.Fatalf("exact phase: matched=%d err=%v", matched, err)
	}
	gotExact, _ := GetRecord(ctx, db, exact.ID)
	gotCased, _ := GetRecord(ctx, db, cased.ID)
	if !gotExact.HasCommented || gotCased.HasCommented {
		t.Fatalf("exact phase touched wrong rows: exact=%v cased=%v", gotExact.HasCommented, gotCased.HasCommented)
	}

	// No exact match for this spelling: the fallback catches the cased row.
	matched, err = MarkCommented(ctx, db, "JANE@EXAMPLE.COM", 5, time.Now().UTC())
	if err != nil {
		t.Fatalf("fallback phase: %v", err)
	}
	if matched == 0 {
		t.Fatalf("fallback phase should have matched")
	}
	gotCased, _ = GetRecord(ctx, db, cased.ID)
	if !gotCased.HasCommented {
		t.Fatalf("cased record should be commented after fallback")
	}
}

func TestMarkCommented_PreservesOriginalCommentDate(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})

	ctx := context.Background()
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := MarkCommented(ctx, db, "a@x.com", 5, first); err != nil {
		t.Fatalf("first: %v", err)
	}

	// A second comment must not advance the timestamp or change the source.
	if _, err := MarkCommented(ctx, db, "a@x.com", 5, first.Add(48*time.Hour)); err != nil {
		t.Fatalf("second: %v", err)
	}

	got, _ := GetRecord(ctx, db, rec.ID)
	if got.CommentDate == nil || !got.CommentDate.Equal(first) {
		t.Fatalf("CommentDate advanced: %v", got.CommentDate)
	}
	if got.CommentSource != domain.CommentSourceAuto {
		t.Fatalf("CommentSource = %q", got.CommentSource)
	}
}

func TestMarkCommented_NoMatchIsNotAnError(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})

	matched, err := MarkCommented(context.Background(), db, "stranger@x.com", 5, time.Now().UTC())
	if err != nil {
		t.Fatalf("MarkCommented: %v", err)
	}
	if matched != 0 {
		t.Fatalf("matched = %d, want 0", matched)
	}
}

func TestForceCommented_SetsManualSource(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := ForceCommented(context.Background(), db, rec.ID, now); err != nil {
		t.Fatalf("ForceCommented: %v", err)
	}

	got, _ := GetRecord(context.Background(), db, rec.ID)
	if !got.HasCommented || got.CommentSource != domain.CommentSourceManual {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.CommentDate == nil || !got.CommentDate.Equal(now) {
		t.Fatalf("CommentDate = %v", got.CommentDate)
	}
}

func TestForceCommented_IdempotentAndNotFound(t *testing.T) {
	db := newFollowupDB(t, &domain.FollowupRecord{})
	rec := seedRecord(t, db, domain.FollowupRecord{OrderID: 1, CustomerEmail: "a@x.com", ProductIDs: "5"})

	ctx := context.Background()
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := ForceCommented(ctx, db, rec.ID, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Repeat with a later time: state must be untouched.
	if err := ForceCommented(ctx, db, rec.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	got, _ := GetRecord(ctx, db, rec.ID)
	if got.CommentDate == nil || !got.CommentDate.Equal(first) {
		t.Fatalf("repeat changed CommentDate: %v", got.CommentDate)
	}

	if err := ForceCommented(ctx, db, 999, first); err != ErrNotFound {
		t.Fatalf("missing row: %v, want ErrNotFound", err)
	}
}
