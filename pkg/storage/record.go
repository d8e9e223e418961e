package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aqakit/brain/pkg/runner"
	"github.com/aqakit/brain/pkg/utdl"
)

// ExecutionRecord is one persisted execution outcome.
type ExecutionRecord struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	PlanFile      string            `json:"plan_file"`
	PlanHash      string            `json:"plan_hash,omitempty"`
	PlanName      string            `json:"plan_name,omitempty"`
	Status        string            `json:"status"`
	DurationMs    int64             `json:"duration_ms"`
	TotalSteps    int               `json:"total_steps"`
	PassedSteps   int               `json:"passed_steps"`
	FailedSteps   int               `json:"failed_steps"`
	RunnerVersion string            `json:"runner_version,omitempty"`
	RunnerReport  []byte            `json:"runner_report,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// PlanHash fingerprints serialized plan content for cross-referencing
// executions of the same plan.
func PlanHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// NewRecordID returns a short unique record id.
func NewRecordID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewRecord builds a record from a finished execution.
func NewRecord(plan *utdl.Plan, result *runner.Result) *ExecutionRecord {
	now := time.Now().UTC()
	rec := &ExecutionRecord{
		ID:         NewRecordID(),
		Timestamp:  now,
		Status:     result.Status,
		DurationMs: result.TotalDurationMs,
		CreatedAt:  now,
	}
	if plan != nil {
		rec.PlanName = plan.Meta.Name
		rec.Tags = plan.Meta.Tags
	}
	rec.TotalSteps = result.Summary.Total
	rec.PassedSteps = result.Summary.Passed
	rec.FailedSteps = result.Summary.Failed
	rec.RunnerReport = result.RawReport
	return rec
}

// ListFilter narrows List results. Zero values mean "no constraint" and all
// set fields combine as AND.
type ListFilter struct {
	Limit     int
	Offset    int
	Status    string
	StartDate time.Time
	EndDate   time.Time
	Tags      []string
}

// DefaultListLimit applies when a filter carries no limit.
const DefaultListLimit = 50

// Stats summarizes a backend's contents.
type Stats struct {
	Backend      string     `json:"backend"`
	Total        int        `json:"total"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	ErrorCount   int        `json:"error_count"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
	SizeBytes    int64      `json:"size_bytes,omitempty"`
}

// Backend is the pluggable history store. Save is an upsert keyed on the
// record id. List returns most-recent-first.
type Backend interface {
	Save(ctx context.Context, rec *ExecutionRecord) error
	Get(ctx context.Context, id string) (*ExecutionRecord, error)
	List(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*Stats, error)
	Clear(ctx context.Context) (int, error)
	Close() error
}

// matchesFilter is the shared AND semantics used by the non-SQL backends.
func (r *ExecutionRecord) matchesFilter(f ListFilter) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.StartDate.IsZero() && r.Timestamp.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && r.Timestamp.After(f.EndDate) {
		return false
	}
	for _, tag := range f.Tags {
		if !containsTag(r.Tags, tag) {
			return false
		}
	}
	return true
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
