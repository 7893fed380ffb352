package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/helmsman-ops/console/core/protocol"
	"github.com/helmsman-ops/console/history"
)

func entry(id string, specType string, finished time.Time) history.Entry {
	return history.Entry{
		CorrelationID: id,
		Spec:          protocol.CommandSpec{Type: specType},
		State:         "completed",
		StartedAt:     finished.Add(-time.Second),
		FinishedAt:    finished,
		Output:        "ok",
	}
}

func newMemory(t *testing.T, retention history.Retention) history.Store {
	t.Helper()
	store, err := history.NewMemoryStore(retention)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	return store
}

func TestRetention_Validation(t *testing.T) {
	tests := []struct {
		name      string
		retention history.Retention
		wantErr   bool
	}{
		{"unbounded", history.Retention{Mode: history.RetentionUnbounded}, false},
		{"capped", history.Retention{Mode: history.RetentionCapped, Cap: 10}, false},
		{"capped without cap", history.Retention{Mode: history.RetentionCapped}, true},
		{"unset mode", history.Retention{}, true},
		{"unknown mode", history.Retention{Mode: "forever"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := history.NewMemoryStore(tt.retention)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMemoryStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, history.ErrBadRetention) {
				t.Errorf("error = %v, want ErrBadRetention", err)
			}
		})
	}
}

func TestMemoryStore_AppendRejectsDuplicate(t *testing.T) {
	store := newMemory(t, history.Retention{Mode: history.RetentionUnbounded})
	ctx := context.Background()

	if err := store.Append(ctx, entry("c-1", "list-teams", time.Now())); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	err := store.Append(ctx, entry("c-1", "list-teams", time.Now()))
	if !errors.Is(err, history.ErrDuplicateEntry) {
		t.Errorf("Append() duplicate error = %v, want ErrDuplicateEntry", err)
	}
}

func TestMemoryStore_QueryMostRecentFirst(t *testing.T) {
	store := newMemory(t, history.Retention{Mode: history.RetentionUnbounded})
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, entry(fmt.Sprintf("c-%d", i+1), "list-teams", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Query(ctx, history.Filter{}, history.Page{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Query() returned %d entries, want 3", len(got))
	}
	for i, want := range []string{"c-3", "c-2", "c-1"} {
		if got[i].CorrelationID != want {
			t.Errorf("entry[%d] = %s, want %s", i, got[i].CorrelationID, want)
		}
	}
}

func TestMemoryStore_QueryFilterAndPage(t *testing.T) {
	store := newMemory(t, history.Retention{Mode: history.RetentionUnbounded})
	ctx := context.Background()
	base := time.Now()

	specs := []string{"list-teams", "reboot", "list-teams", "reboot"}
	for i, specType := range specs {
		if err := store.Append(ctx, entry(fmt.Sprintf("c-%d", i+1), specType, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Query(ctx, history.Filter{SpecType: "reboot"}, history.Page{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].CorrelationID != "c-4" || got[1].CorrelationID != "c-2" {
		t.Errorf("filtered query = %+v", got)
	}

	got, err = store.Query(ctx, history.Filter{}, history.Page{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].CorrelationID != "c-3" || got[1].CorrelationID != "c-2" {
		t.Errorf("paged query = %+v", got)
	}

	got, err = store.Query(ctx, history.Filter{}, history.Page{Offset: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("out-of-range page returned %d entries", len(got))
	}
}

func TestMemoryStore_CappedEvictsOldest(t *testing.T) {
	store := newMemory(t, history.Retention{Mode: history.RetentionCapped, Cap: 2})
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, entry(fmt.Sprintf("c-%d", i+1), "x", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.Query(ctx, history.Filter{}, history.Page{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("capped store holds %d entries, want 2", len(got))
	}
	if got[0].CorrelationID != "c-3" || got[1].CorrelationID != "c-2" {
		t.Errorf("capped store = %+v, want c-3 then c-2", got)
	}

	// The evicted id is appendable again only as far as the index is
	// concerned; amend on it must fail.
	if err := store.AmendResultCode(ctx, "c-1", 0); !errors.Is(err, history.ErrEntryNotFound) {
		t.Errorf("AmendResultCode(evicted) error = %v, want ErrEntryNotFound", err)
	}
}

func TestMemoryStore_AmendResultCode(t *testing.T) {
	store := newMemory(t, history.Retention{Mode: history.RetentionUnbounded})
	ctx := context.Background()

	e := entry("c-1", "x", time.Now())
	e.State = "cancelled"
	if err := store.Append(ctx, e); err != nil {
		t.Fatal(err)
	}

	if err := store.AmendResultCode(ctx, "c-1", 7); err != nil {
		t.Fatalf("AmendResultCode() error = %v", err)
	}

	got, err := store.Query(ctx, history.Filter{}, history.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ResultCode == nil || *got[0].ResultCode != 7 {
		t.Errorf("result code = %v, want 7", got[0].ResultCode)
	}
	if got[0].State != "cancelled" {
		t.Errorf("state = %q, amend must not change it", got[0].State)
	}

	if err := store.AmendResultCode(ctx, "c-404", 1); !errors.Is(err, history.ErrEntryNotFound) {
		t.Errorf("AmendResultCode(unknown) error = %v, want ErrEntryNotFound", err)
	}
}
