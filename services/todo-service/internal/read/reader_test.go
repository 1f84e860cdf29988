package read

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseSort(t *testing.T) {
	cases := []struct {
		in   string
		want Sort
	}{
		{"createdAt_desc", SortCreatedAtDesc},
		{"createdAt_asc", SortCreatedAtAsc},
		{"", SortCreatedAtAsc},
		{"garbage", SortCreatedAtAsc},
	}
	for _, c := range cases {
		if got := ParseSort(c.in); got != c.want {
			t.Errorf("ParseSort(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestBuildListQueryDefaults(t *testing.T) {
	userID := uuid.New()
	sql, args := buildListQuery(ListQuery{UserID: userID})

	if !strings.Contains(sql, "ORDER BY created_at ASC") {
		t.Fatalf("default sort must be ascending:\n%s", sql)
	}
	if strings.Contains(sql, "ILIKE") {
		t.Fatalf("empty search must not add a filter:\n%s", sql)
	}
	if !strings.Contains(sql, "OFFSET $2 LIMIT $3") {
		t.Fatalf("expected offset/limit placeholders $2/$3:\n%s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
	if args[0] != userID {
		t.Fatal("first arg must be the user id")
	}
	if args[1] != 0 || args[2] != 20 {
		t.Fatalf("expected skip 0 take 20, got %v %v", args[1], args[2])
	}
}

func TestBuildListQuerySearchAndDesc(t *testing.T) {
	sql, args := buildListQuery(ListQuery{
		UserID: uuid.New(),
		Search: "report",
		Sort:   SortCreatedAtDesc,
		Skip:   40,
		Take:   10,
	})

	if !strings.Contains(sql, "title ILIKE") || !strings.Contains(sql, "description ILIKE") {
		t.Fatalf("search must match title and description:\n%s", sql)
	}
	if !strings.Contains(sql, "ORDER BY created_at DESC") {
		t.Fatalf("expected descending sort:\n%s", sql)
	}
	if !strings.Contains(sql, "OFFSET $3 LIMIT $4") {
		t.Fatalf("expected offset/limit placeholders $3/$4:\n%s", sql)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[1] != "report" || args[2] != 40 || args[3] != 10 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildListQueryClampsNegativeSkip(t *testing.T) {
	_, args := buildListQuery(ListQuery{UserID: uuid.New(), Skip: -5, Take: -1})
	if args[1] != 0 || args[2] != 20 {
		t.Fatalf("expected clamped skip/take, got %v %v", args[1], args[2])
	}
}
