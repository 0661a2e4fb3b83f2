package memory

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"appgen/internal/domain/entity"
)

func TestHistoryRepo_ListLimit(t *testing.T) {
	repo := NewHistoryRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := repo.Append(ctx, entity.HistoryEntry{ID: strconv.Itoa(i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"0", "1", "2", "3", "4"}},
		{"negative means all", -1, []string{"0", "1", "2", "3", "4"}},
		{"last two", 2, []string{"3", "4"}},
		{"over length", 10, []string{"0", "1", "2", "3", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestHistoryRepo_ListReturnsCopy(t *testing.T) {
	repo := NewHistoryRepo()
	ctx := context.Background()
	_ = repo.Append(ctx, entity.HistoryEntry{ID: "a"})

	got, _ := repo.List(ctx, 0)
	got[0].ID = "mutated"

	again, _ := repo.List(ctx, 0)
	if again[0].ID != "a" {
		t.Fatalf("stored entry mutated through List result")
	}
}

func TestHistoryRepo_ConcurrentAppend(t *testing.T) {
	repo := NewHistoryRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Append(ctx, entity.HistoryEntry{ID: strconv.Itoa(i)})
		}(i)
	}
	wg.Wait()

	got, _ := repo.List(ctx, 0)
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
}

func TestHistoryRepo_CancelledContext(t *testing.T) {
	repo := NewHistoryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.Append(ctx, entity.HistoryEntry{ID: "x"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
