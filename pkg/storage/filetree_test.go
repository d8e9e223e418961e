package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileTreeSaveGetDelete(t *testing.T) {
	root := t.TempDir()
	ft, err := NewFileTree(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ts := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	rec := testRecord("ft0000000001", "success", ts)
	if err := ft.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Records are grouped under a date directory.
	if _, err := os.Stat(filepath.Join(root, "2026-08-25", "ft0000000001.json.gz")); err != nil {
		t.Errorf("record file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, indexFile)); err != nil {
		t.Errorf("index missing: %v", err)
	}

	got, err := ft.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PlanName != "smoke" || string(got.RunnerReport) != string(rec.RunnerReport) {
		t.Errorf("round trip: %+v", got)
	}

	ok, err := ft.Delete(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := ft.Get(ctx, rec.ID); err == nil {
		t.Error("deleted record should not be found")
	}
}

func TestFileTreeIndexSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	ft, err := NewFileTree(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := ft.Save(ctx, testRecord("ft0000000002", "failure", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := ft.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileTree(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Get(ctx, "ft0000000002")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Status != "failure" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestFileTreeListFilters(t *testing.T) {
	ft, err := NewFileTree(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	ids := []string{"fta000000001", "ftb000000002", "ftc000000003"}
	statuses := []string{"success", "error", "success"}
	for i, id := range ids {
		rec := testRecord(id, statuses[i], base.AddDate(0, 0, i))
		if err := ft.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	all, err := ft.List(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "ftc000000003" {
		t.Errorf("list order: %+v", all)
	}

	errored, err := ft.List(ctx, ListFilter{Status: "error"})
	if err != nil {
		t.Fatal(err)
	}
	if len(errored) != 1 || errored[0].ID != "ftb000000002" {
		t.Errorf("status filter: %+v", errored)
	}

	windowed, err := ft.List(ctx, ListFilter{EndDate: base.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(windowed) != 2 {
		t.Errorf("window filter: %d", len(windowed))
	}
}

func TestFileTreeStatsAndClear(t *testing.T) {
	ft, err := NewFileTree(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	base := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{"success", "success", "failure"} {
		if err := ft.Save(ctx, testRecord(newTestID(i), status, base.AddDate(0, 0, i))); err != nil {
			t.Fatal(err)
		}
	}

	st, err := ft.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Backend != "file" || st.Total != 3 || st.SuccessCount != 2 || st.FailureCount != 1 {
		t.Errorf("stats: %+v", st)
	}
	if st.Oldest == nil || st.Newest == nil || !st.Oldest.Before(*st.Newest) {
		t.Errorf("time range: %+v", st)
	}
	if st.SizeBytes == 0 {
		t.Error("size should count record files")
	}

	n, err := ft.Clear(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	empty, err := ft.Stats(ctx)
	if err != nil || empty.Total != 0 {
		t.Fatalf("after clear: %+v, %v", empty, err)
	}
}

func TestFileTreeMigrateToSQLite(t *testing.T) {
	ft, err := NewFileTree(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := ft.Save(ctx, testRecord(newTestID(i), "success", time.Now().UTC().Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	dest := openSQLite(t)
	n, err := ft.MigrateTo(ctx, dest)
	if err != nil || n != 4 {
		t.Fatalf("MigrateTo = %d, %v", n, err)
	}

	st, err := dest.Stats(ctx)
	if err != nil || st.Total != 4 {
		t.Fatalf("destination stats: %+v, %v", st, err)
	}
}

func newTestID(i int) string {
	return NewRecordID()[:8] + string(rune('a'+i)) + "000"
}
