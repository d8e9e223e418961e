package plans

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

// Source values recorded on saved versions.
const (
	SourceLLM    = "llm"
	SourceManual = "manual"
	SourceImport = "import"
)

const (
	indexFile   = "index.json"
	currentFile = "current.json"
)

// Version is one immutable snapshot of a plan.
type Version struct {
	Version       int        `json:"version"`
	Plan          *utdl.Plan `json:"plan"`
	CreatedAt     time.Time  `json:"created_at"`
	CreatedBy     string     `json:"created_by,omitempty"`
	Source        string     `json:"source"`
	LLMProvider   string     `json:"llm_provider,omitempty"`
	LLMModel      string     `json:"llm_model,omitempty"`
	InputHash     string     `json:"input_hash,omitempty"`
	Description   string     `json:"description,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	ParentVersion int        `json:"parent_version,omitempty"`
}

// Index summarizes one plan's version history.
type Index struct {
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	CurrentVersion int       `json:"current_version"`
	TotalVersions  int       `json:"total_versions"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Path           string    `json:"path"`
}

// SaveOptions carries provenance for a new version.
type SaveOptions struct {
	CreatedBy   string
	Source      string
	LLMProvider string
	LLMModel    string
	InputHash   string
	Description string
	Tags        []string
}

// Store persists plan versions under a root directory, one subdirectory per
// plan slug.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore opens a version store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, diag.New(diag.CodeInternalError, "plan store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to create plan store directory", err)
	}
	return &Store{root: dir}, nil
}

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9-]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// Slugify converts a plan name into its directory name. Names that reduce to
// nothing become "unnamed-plan".
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed-plan"
	}
	return s
}

// Save records a new version of the plan and makes it current. The stored
// plan is a deep copy, so later mutations by the caller do not leak into the
// store.
func (s *Store) Save(plan *utdl.Plan, opts SaveOptions) (*Version, error) {
	if plan == nil {
		return nil, diag.New(diag.CodeInternalError, "cannot save a nil plan")
	}
	name := plan.Meta.Name
	if name == "" {
		name = "unnamed plan"
	}
	clone, err := plan.Clone()
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to copy plan for versioning", err)
	}
	source := opts.Source
	if source == "" {
		source = SourceManual
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slug := Slugify(name)
	dir := filepath.Join(s.root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to create plan directory", err)
	}

	index, err := s.readIndex(slug)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if index == nil {
		index = &Index{
			Name:      name,
			Slug:      slug,
			CreatedAt: now,
			Path:      dir,
		}
	}

	version := &Version{
		Version:       index.CurrentVersion + 1,
		Plan:          clone,
		CreatedAt:     now,
		CreatedBy:     opts.CreatedBy,
		Source:        source,
		LLMProvider:   opts.LLMProvider,
		LLMModel:      opts.LLMModel,
		InputHash:     opts.InputHash,
		Description:   opts.Description,
		Tags:          opts.Tags,
		ParentVersion: index.CurrentVersion,
	}

	raw, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to encode plan version", err)
	}
	versionPath := filepath.Join(dir, fmt.Sprintf("v%d.json", version.Version))
	if err := os.WriteFile(versionPath, raw, 0o644); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to write plan version", err)
	}
	if err := os.WriteFile(filepath.Join(dir, currentFile), raw, 0o644); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to update current version", err)
	}

	index.Name = name
	index.CurrentVersion = version.Version
	index.TotalVersions++
	index.UpdatedAt = now
	if err := s.writeIndex(slug, index); err != nil {
		return nil, err
	}
	return version, nil
}

// Get loads one version of a plan by name.
func (s *Store) Get(name string, version int) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readVersion(Slugify(name), version)
}

// GetCurrent loads the current version of a plan by name.
func (s *Store) GetCurrent(name string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := Slugify(name)
	raw, err := os.ReadFile(filepath.Join(s.root, slug, currentFile))
	if os.IsNotExist(err) {
		return nil, diag.Newf(diag.CodeVersionNotFound, "plan %q has no versions", name)
	}
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to read current version", err)
	}
	var v Version
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "corrupt current version file", err)
	}
	return &v, nil
}

// ListVersions returns version metadata for one plan, newest first. Plan
// payloads are omitted to keep listings small.
func (s *Store) ListVersions(name string) ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := Slugify(name)
	index, err := s.readIndex(slug)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, diag.Newf(diag.CodeVersionNotFound, "plan %q has no versions", name)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, slug))
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to list plan directory", err)
	}
	var out []Version
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "v%d.json", &n); err != nil {
			continue
		}
		v, err := s.readVersion(slug, n)
		if err != nil {
			continue
		}
		v.Plan = nil
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// ListPlans returns the index of every stored plan, sorted by name.
func (s *Store) ListPlans() ([]Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to list plan store", err)
	}
	var out []Index
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		index, err := s.readIndex(e.Name())
		if err != nil || index == nil {
			continue
		}
		out = append(out, *index)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Rollback makes an older version current by saving its plan as a new
// version. History is preserved; nothing is rewritten.
func (s *Store) Rollback(name string, target int) (*Version, error) {
	current, err := s.GetCurrent(name)
	if err != nil {
		return nil, err
	}
	if target == current.Version {
		return nil, diag.Newf(diag.CodeVersionNotFound, "version %d is already current", target)
	}
	old, err := s.Get(name, target)
	if err != nil {
		return nil, err
	}
	return s.Save(old.Plan, SaveOptions{
		Source:      SourceManual,
		Description: fmt.Sprintf("Rollback from v%d to v%d", current.Version, target),
	})
}

// DeleteVersion removes one stored version. The current version cannot be
// deleted; roll back first.
func (s *Store) DeleteVersion(name string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := Slugify(name)
	index, err := s.readIndex(slug)
	if err != nil {
		return err
	}
	if index == nil {
		return diag.Newf(diag.CodeVersionNotFound, "plan %q has no versions", name)
	}
	if version == index.CurrentVersion {
		return diag.Newf(diag.CodeVersionNotFound,
			"cannot delete current version v%d of %q; roll back first", version, name)
	}
	path := filepath.Join(s.root, slug, fmt.Sprintf("v%d.json", version))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return diag.Newf(diag.CodeVersionNotFound, "plan %q has no version %d", name, version)
		}
		return diag.Wrap(diag.CodeInternalError, "failed to delete version", err)
	}
	index.TotalVersions--
	index.UpdatedAt = time.Now().UTC()
	return s.writeIndex(slug, index)
}

// DeletePlan removes a plan and its whole history.
func (s *Store) DeletePlan(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slug := Slugify(name)
	dir := filepath.Join(s.root, slug)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return diag.Newf(diag.CodeVersionNotFound, "plan %q has no versions", name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return diag.Wrap(diag.CodeInternalError, "failed to delete plan", err)
	}
	return nil
}

func (s *Store) readVersion(slug string, version int) (*Version, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, slug, fmt.Sprintf("v%d.json", version)))
	if os.IsNotExist(err) {
		return nil, diag.Newf(diag.CodeVersionNotFound, "no version %d under %s", version, slug)
	}
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to read plan version", err)
	}
	var v Version
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "corrupt plan version file", err)
	}
	return &v, nil
}

func (s *Store) readIndex(slug string) (*Index, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, slug, indexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to read plan index", err)
	}
	var index Index
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "corrupt plan index", err)
	}
	return &index, nil
}

func (s *Store) writeIndex(slug string, index *Index) error {
	raw, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return diag.Wrap(diag.CodeInternalError, "failed to encode plan index", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, slug, indexFile), raw, 0o644); err != nil {
		return diag.Wrap(diag.CodeInternalError, "failed to write plan index", err)
	}
	return nil
}
