package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/claimdesk/internal/domain"
)

func TestClaimQueryNoFilter(t *testing.T) {
	sql, args := NewClaimQuery(domain.ClaimFilter{}).ListSQL()
	if strings.Contains(sql, "WHERE c.") || strings.Contains(sql, "AND c.created_at") {
		t.Fatalf("unexpected filter in %q", sql)
	}
	if count, _ := NewClaimQuery(domain.ClaimFilter{}).CountSQL(); count != "SELECT count(*) FROM claims c" {
		t.Fatalf("unexpected count sql %q", count)
	}
	if !strings.Contains(sql, "ORDER BY c.created_at DESC") {
		t.Fatalf("list must sort newest first: %q", sql)
	}
	if len(args) != 2 || args[0] != domain.DefaultClaimPageSize || args[1] != 0 {
		t.Fatalf("unexpected paging args %v", args)
	}
}

func TestClaimQueryAllFilters(t *testing.T) {
	from := time.Date(2025, 3, 1, 15, 4, 0, 0, time.UTC)
	to := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	q := NewClaimQuery(domain.ClaimFilter{
		UserID:   77,
		Status:   domain.ClaimPending,
		DateFrom: &from,
		DateTo:   &to,
		Page:     3,
		PageSize: 20,
	})

	countSQL, countArgs := q.CountSQL()
	want := "SELECT count(*) FROM claims c WHERE c.user_id = $1 AND c.claim_status = $2 AND c.created_at >= $3 AND c.created_at <= $4"
	if countSQL != want {
		t.Fatalf("unexpected count sql:\n got %q\nwant %q", countSQL, want)
	}
	if len(countArgs) != 4 {
		t.Fatalf("expected 4 args, got %v", countArgs)
	}
	if countArgs[0] != int64(77) || countArgs[1] != "pending" {
		t.Fatalf("unexpected args %v", countArgs)
	}
	if got := countArgs[2].(time.Time); !got.Equal(from) {
		t.Fatalf("date_from must be used as given, got %v", got)
	}
	if got := countArgs[3].(time.Time); !got.Equal(to) {
		t.Fatalf("date_to must be used as given, got %v", got)
	}

	listSQL, listArgs := q.ListSQL()
	if !strings.Contains(listSQL, "LIMIT $5 OFFSET $6") {
		t.Fatalf("paging placeholders must follow filters: %q", listSQL)
	}
	if listArgs[4] != 20 || listArgs[5] != 40 {
		t.Fatalf("unexpected paging args %v", listArgs[4:])
	}
	if !strings.Contains(listSQL, "is_chat_active") {
		t.Fatalf("list must report chat activity: %q", listSQL)
	}
}

func TestClaimQueryKeepsTimeOfDay(t *testing.T) {
	from := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	_, args := NewClaimQuery(domain.ClaimFilter{DateFrom: &from, DateTo: &to}).CountSQL()
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
	lo, hi := args[0].(time.Time), args[1].(time.Time)
	if lo.Hour() != 15 || hi.Hour() != 18 || !lo.Before(hi) {
		t.Fatalf("afternoon window widened to %v .. %v", lo, hi)
	}
}

func TestClaimQueryCapsPageSize(t *testing.T) {
	q := NewClaimQuery(domain.ClaimFilter{PageSize: 10_000})
	if q.limit != maxClaimPageSize {
		t.Fatalf("expected cap %d, got %d", maxClaimPageSize, q.limit)
	}
}

func TestClaimQueryArgsNotShared(t *testing.T) {
	q := NewClaimQuery(domain.ClaimFilter{UserID: 1})
	_, listArgs := q.ListSQL()
	_, countArgs := q.CountSQL()
	if len(countArgs) != 1 || len(listArgs) != 3 {
		t.Fatalf("list and count args must be independent: %v %v", listArgs, countArgs)
	}
}
