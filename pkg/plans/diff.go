package plans

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/aqakit/brain/pkg/utdl"
)

// StepChange records one modified step with its before and after shapes.
type StepChange struct {
	StepID string     `json:"step_id"`
	Before *utdl.Step `json:"before"`
	After  *utdl.Step `json:"after"`
}

// Diff is a structural comparison of two plan versions.
type Diff struct {
	VersionA      int               `json:"version_a"`
	VersionB      int               `json:"version_b"`
	StepsAdded    []string          `json:"steps_added"`
	StepsRemoved  []string          `json:"steps_removed"`
	StepsModified []StepChange      `json:"steps_modified"`
	ConfigChanges map[string][2]any `json:"config_changes,omitempty"`
	MetaChanges   map[string][2]any `json:"meta_changes,omitempty"`
	HasChanges    bool              `json:"has_changes"`
	Summary       string            `json:"summary"`
}

// DiffVersions compares two stored versions of a plan.
func (s *Store) DiffVersions(name string, a, b int) (*Diff, error) {
	va, err := s.Get(name, a)
	if err != nil {
		return nil, err
	}
	vb, err := s.Get(name, b)
	if err != nil {
		return nil, err
	}
	d := DiffPlans(va.Plan, vb.Plan)
	d.VersionA = a
	d.VersionB = b
	return d, nil
}

// DiffPlans compares two plans structurally. Step identity follows step IDs;
// order changes alone do not count as modifications.
func DiffPlans(a, b *utdl.Plan) *Diff {
	d := &Diff{
		StepsAdded:    []string{},
		StepsRemoved:  []string{},
		StepsModified: []StepChange{},
	}

	stepsA := stepsByID(a)
	stepsB := stepsByID(b)

	for _, s := range b.Steps {
		if _, ok := stepsA[s.ID]; !ok {
			d.StepsAdded = append(d.StepsAdded, s.ID)
		}
	}
	for _, s := range a.Steps {
		if _, ok := stepsB[s.ID]; !ok {
			d.StepsRemoved = append(d.StepsRemoved, s.ID)
		}
	}
	for _, sa := range a.Steps {
		sb, ok := stepsB[sa.ID]
		if !ok {
			continue
		}
		if !stepsEqual(&sa, sb) {
			before := sa
			d.StepsModified = append(d.StepsModified, StepChange{
				StepID: sa.ID,
				Before: &before,
				After:  sb,
			})
		}
	}

	d.ConfigChanges = diffFields(a.Config, b.Config)
	d.MetaChanges = diffFields(
		utdl.Meta{Name: a.Meta.Name, Description: a.Meta.Description, Tags: a.Meta.Tags},
		utdl.Meta{Name: b.Meta.Name, Description: b.Meta.Description, Tags: b.Meta.Tags},
	)

	d.HasChanges = len(d.StepsAdded)+len(d.StepsRemoved)+len(d.StepsModified) > 0 ||
		len(d.ConfigChanges) > 0 || len(d.MetaChanges) > 0
	d.Summary = summarize(d)
	return d
}

func stepsByID(p *utdl.Plan) map[string]*utdl.Step {
	out := make(map[string]*utdl.Step, len(p.Steps))
	for i := range p.Steps {
		out[p.Steps[i].ID] = &p.Steps[i]
	}
	return out
}

// stepsEqual compares through the JSON form so map ordering and nil-versus-
// empty slices do not produce spurious differences.
func stepsEqual(a, b *utdl.Step) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	var ma, mb map[string]interface{}
	if json.Unmarshal(ra, &ma) != nil || json.Unmarshal(rb, &mb) != nil {
		return string(ra) == string(rb)
	}
	return reflect.DeepEqual(ma, mb)
}

// diffFields reports changed top-level JSON fields as old/new pairs.
func diffFields(a, b interface{}) map[string][2]any {
	ma := toMap(a)
	mb := toMap(b)
	out := map[string][2]any{}
	for k, va := range ma {
		if vb, ok := mb[k]; !ok || !reflect.DeepEqual(va, vb) {
			out[k] = [2]any{va, mb[k]}
		}
	}
	for k, vb := range mb {
		if _, ok := ma[k]; !ok {
			out[k] = [2]any{nil, vb}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func summarize(d *Diff) string {
	if !d.HasChanges {
		return "no changes"
	}
	var parts []string
	if n := len(d.StepsAdded); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d steps", n))
	}
	if n := len(d.StepsRemoved); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d steps", n))
	}
	if n := len(d.StepsModified); n > 0 {
		parts = append(parts, fmt.Sprintf("~%d modified", n))
	}
	if len(d.ConfigChanges) > 0 {
		parts = append(parts, "config changed")
	}
	if len(d.MetaChanges) > 0 {
		parts = append(parts, "meta changed")
	}
	return strings.Join(parts, ", ")
}
