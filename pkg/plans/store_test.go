package plans

import (
	"errors"
	"testing"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

func newPlan(t *testing.T, name string, stepIDs ...string) *utdl.Plan {
	t.Helper()
	p := utdl.NewPlan(name, "http://localhost:8000")
	for _, id := range stepIDs {
		p.Steps = append(p.Steps, utdl.Step{
			ID:     id,
			Action: utdl.ActionHTTPRequest,
			Params: map[string]interface{}{"method": "GET", "path": "/" + id},
		})
	}
	return p
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Login Flow Tests", "login-flow-tests"},
		{"  API  v2!! ", "api-v2"},
		{"---", "unnamed-plan"},
		{"", "unnamed-plan"},
		{"already-slugged", "already-slugged"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveAssignsSequentialVersions(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	v1, err := s.Save(newPlan(t, "Checkout", "a"), SaveOptions{Source: SourceLLM, LLMProvider: "mock"})
	if err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	v2, err := s.Save(newPlan(t, "Checkout", "a", "b"), SaveOptions{Source: SourceManual})
	if err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	if v1.Version != 1 || v2.Version != 2 {
		t.Errorf("versions = %d, %d; want 1, 2", v1.Version, v2.Version)
	}
	if v2.ParentVersion != 1 {
		t.Errorf("parent of v2 = %d, want 1", v2.ParentVersion)
	}

	current, err := s.GetCurrent("Checkout")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current.Version != 2 || len(current.Plan.Steps) != 2 {
		t.Errorf("current = v%d with %d steps", current.Version, len(current.Plan.Steps))
	}
}

func TestSavedPlanIsACopy(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := newPlan(t, "Mutation", "a")
	if _, err := s.Save(p, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	p.Steps[0].ID = "mutated"

	got, err := s.Get("Mutation", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Plan.Steps[0].ID != "a" {
		t.Error("stored version must not alias caller memory")
	}
}

func TestGetUnknownVersion(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(newPlan(t, "X", "a"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	_, err = s.Get("X", 9)
	var se *diag.StructuredError
	if !errors.As(err, &se) || se.Code != diag.CodeVersionNotFound {
		t.Errorf("expected E6007, got %v", err)
	}
	if _, err := s.GetCurrent("never-saved"); err == nil {
		t.Error("expected error for unknown plan")
	}
}

func TestListVersionsAndPlans(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Save(newPlan(t, "Multi", "a"), SaveOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Save(newPlan(t, "Other", "b"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}

	versions, err := s.ListVersions("Multi")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 3 {
		t.Fatalf("versions = %d, want 3", len(versions))
	}
	for i, v := range versions {
		if want := len(versions) - i; v.Version != want {
			t.Errorf("version[%d] = %d, want %d (newest first)", i, v.Version, want)
		}
		if v.Plan != nil {
			t.Error("listing should omit plan payloads")
		}
	}

	all, err := s.ListPlans()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("plans = %d, want 2", len(all))
	}
	if all[0].Name != "Multi" || all[1].Name != "Other" {
		t.Errorf("plan order = %s, %s", all[0].Name, all[1].Name)
	}
	if all[0].CurrentVersion != 3 || all[0].TotalVersions != 3 {
		t.Errorf("Multi index = %+v", all[0])
	}
}

func TestRollbackCreatesNewVersion(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(newPlan(t, "R", "a"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(newPlan(t, "R", "a", "b"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}

	rb, err := s.Rollback("R", 1)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rb.Version != 3 {
		t.Errorf("rollback version = %d, want 3", rb.Version)
	}
	if rb.Source != SourceManual {
		t.Errorf("rollback source = %s", rb.Source)
	}
	if rb.Description != "Rollback from v2 to v1" {
		t.Errorf("rollback description = %q", rb.Description)
	}
	if len(rb.Plan.Steps) != 1 {
		t.Errorf("rollback plan steps = %d, want 1", len(rb.Plan.Steps))
	}

	// History intact.
	if _, err := s.Get("R", 2); err != nil {
		t.Errorf("v2 should survive rollback: %v", err)
	}

	// Rolling back to the current version is refused.
	if _, err := s.Rollback("R", 3); err == nil {
		t.Error("rollback to current must fail")
	}
}

func TestDeleteVersionGuards(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(newPlan(t, "D", "a"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(newPlan(t, "D", "b"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteVersion("D", 2); err == nil {
		t.Error("deleting the current version must fail")
	}
	if err := s.DeleteVersion("D", 1); err != nil {
		t.Errorf("DeleteVersion(1): %v", err)
	}
	if _, err := s.Get("D", 1); err == nil {
		t.Error("v1 should be gone")
	}
	if err := s.DeleteVersion("D", 1); err == nil {
		t.Error("double delete must fail")
	}
}

func TestDeletePlan(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(newPlan(t, "Gone", "a"), SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePlan("Gone"); err != nil {
		t.Fatalf("DeletePlan: %v", err)
	}
	if _, err := s.GetCurrent("Gone"); err == nil {
		t.Error("deleted plan should be unknown")
	}
	if err := s.DeletePlan("Gone"); err == nil {
		t.Error("deleting an unknown plan must fail")
	}
}
