package memory

import (
	"context"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/store"
)

func sampleRecord(slug string) store.Record {
	return store.Record{
		ID:        uuid.New(),
		Slug:      slug,
		Transform: "histogram",
		Table: dataset.Table{Columns: []dataset.Column{{
			Name: "depth",
			Values: []dataset.Value{
				dataset.Number(decimal.NewFromInt(4)),
				dataset.Number(decimal.NewFromInt(9)),
			},
		}}},
		Params: json.RawMessage(`{"column":"depth"}`),
		Document: schema.ChartDocument{
			Mark: schema.MarkBar,
			Data: &schema.DataValues{Values: []schema.Bin{
				{Min: 0, Max: 5, N: 1},
				{Min: 5, Max: 10, N: 1},
			}},
		},
	}
}

func TestPutAndGet(t *testing.T) {
	catalog := New()
	ctx := context.Background()

	saved, err := catalog.Put(ctx, sampleRecord("ocean-temps"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if saved.Revision != 1 {
		t.Errorf("expected revision 1, got %d", saved.Revision)
	}
	if saved.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}

	retrieved, err := catalog.Get(ctx, "ocean-temps")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if retrieved.Slug != "ocean-temps" || retrieved.Transform != "histogram" {
		t.Errorf("unexpected record: %+v", retrieved)
	}
	if len(retrieved.Document.Bins()) != 2 {
		t.Errorf("expected 2 bins, got %d", len(retrieved.Document.Bins()))
	}

	// Mutating the returned copy must not touch the stored record.
	retrieved.Table.Columns[0].Values[0] = dataset.Null()
	again, err := catalog.Get(ctx, "ocean-temps")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Table.Columns[0].Values[0].IsNull() {
		t.Error("stored record was modified through a returned copy")
	}
}

func TestGetNotFound(t *testing.T) {
	catalog := New()

	_, err := catalog.Get(context.Background(), "missing")
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Fatalf("expected not-found code, got %v", err)
	}
}

func TestGetRejectsBadSlug(t *testing.T) {
	catalog := New()

	_, err := catalog.Get(context.Background(), "Not A Slug")
	if !errs.HasCode(err, errs.CodeInvalid) {
		t.Fatalf("expected invalid code, got %v", err)
	}
}

func TestPutConflictsOnExistingSlug(t *testing.T) {
	catalog := New()
	ctx := context.Background()

	if _, err := catalog.Put(ctx, sampleRecord("ocean-temps")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_, err := catalog.Put(ctx, sampleRecord("ocean-temps"))
	if !errs.HasCode(err, errs.CodeConflict) {
		t.Fatalf("expected conflict code, got %v", err)
	}
}

func TestCompareAndSwapBumpsRevision(t *testing.T) {
	catalog := New()
	ctx := context.Background()

	saved, err := catalog.Put(ctx, sampleRecord("ocean-temps"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	updated := sampleRecord("ocean-temps")
	updated.ID = uuid.Nil
	updated.Params = json.RawMessage(`{"column":"depth","bins":4}`)

	result, err := catalog.CompareAndSwap(ctx, saved.Revision, updated)
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if result.Revision != 2 {
		t.Errorf("expected revision 2, got %d", result.Revision)
	}
	if result.ID != saved.ID {
		t.Errorf("expected the stored identity to survive updates, got %s", result.ID)
	}
	if string(result.Params) != `{"column":"depth","bins":4}` {
		t.Errorf("unexpected params: %s", result.Params)
	}
}

func TestCompareAndSwapRevisionMismatch(t *testing.T) {
	catalog := New()
	ctx := context.Background()

	if _, err := catalog.Put(ctx, sampleRecord("ocean-temps")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	_, err := catalog.CompareAndSwap(ctx, 999, sampleRecord("ocean-temps"))
	if !errs.HasCode(err, errs.CodeConflict) {
		t.Fatalf("expected conflict code, got %v", err)
	}
}

func TestCompareAndSwapNotFound(t *testing.T) {
	catalog := New()

	_, err := catalog.CompareAndSwap(context.Background(), 1, sampleRecord("missing"))
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Fatalf("expected not-found code, got %v", err)
	}
}

func TestListSortsBySlug(t *testing.T) {
	catalog := New()
	ctx := context.Background()

	for _, slug := range []string{"west", "east", "north"} {
		if _, err := catalog.Put(ctx, sampleRecord(slug)); err != nil {
			t.Fatalf("Put(%s) error = %v", slug, err)
		}
	}

	records, err := catalog.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"east", "north", "west"} {
		if records[i].Slug != want {
			t.Errorf("position %d: expected %s, got %s", i, want, records[i].Slug)
		}
	}
}

func TestContextCancellation(t *testing.T) {
	catalog := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := catalog.Put(ctx, sampleRecord("ocean-temps")); err == nil {
		t.Error("expected error for canceled context")
	}
	if _, err := catalog.List(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}
