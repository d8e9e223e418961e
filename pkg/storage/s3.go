package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the slice of the S3 client this backend uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores one gzipped record object per day prefix plus an index object
// mapping id to key. Writes are serialized by an in-process lock; filter
// operations run over the cached index.
type S3 struct {
	client s3API
	bucket string
	prefix string

	mu    sync.Mutex
	index map[string]indexEntry
}

// S3Config configures the object-store backend.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewS3 builds the backend and loads the remote index.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3WithClient(ctx, client, cfg)
}

// newS3WithClient is the constructor tests use with a stub client.
func newS3WithClient(ctx context.Context, client s3API, cfg S3Config) (*S3, error) {
	s := &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.TrimSuffix(cfg.Prefix, "/"),
		index:  map[string]indexEntry{},
	}
	if err := s.loadIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3) key(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

func (s *S3) indexKey() string { return s.key(indexFile) }

func (s *S3) loadIndex(ctx context.Context) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.indexKey()),
	})
	if err != nil {
		// Missing index means an empty (or never used) store.
		return nil
	}
	defer out.Body.Close()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("failed to read history index: %w", err)
	}
	if err := json.Unmarshal(payload, &s.index); err != nil {
		return fmt.Errorf("corrupt history index: %w", err)
	}
	return nil
}

func (s *S3) writeIndexLocked(ctx context.Context) error {
	payload, err := json.Marshal(s.index)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.indexKey()),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Save upserts a record object and the index.
func (s *S3) Save(ctx context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return fmt.Errorf("failed to compress record: %w", err)
	}

	day := rec.Timestamp.UTC().Format("2006-01-02")
	rel := path.Join(day, rec.ID+".json.gz")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(s.key(rel)),
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to put record object: %w", err)
	}

	if old, ok := s.index[rec.ID]; ok && old.Path != rel {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(old.Path)),
		})
	}
	s.index[rec.ID] = indexEntry{
		Path:      rel,
		Timestamp: rec.Timestamp.UTC(),
		Status:    rec.Status,
		PlanName:  rec.PlanName,
		Tags:      rec.Tags,
	}
	return s.writeIndexLocked(ctx)
}

// Get loads one record by id.
func (s *S3) Get(ctx context.Context, id string) (*ExecutionRecord, error) {
	s.mu.Lock()
	entry, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution record not found: %s", id)
	}
	return s.load(ctx, entry.Path)
}

func (s *S3) load(ctx context.Context, rel string) (*ExecutionRecord, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(rel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record object: %w", err)
	}
	defer out.Body.Close()
	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read record object: %w", err)
	}
	payload, err := gunzipBytes(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record: %w", err)
	}
	var rec ExecutionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// List filters over the cached index, newest first.
func (s *S3) List(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	s.mu.Lock()
	entries := sortedEntries(s.index)
	s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	records := []*ExecutionRecord{}
	skipped := 0
	for _, e := range entries {
		rec, err := s.load(ctx, e.Path)
		if err != nil {
			return nil, err
		}
		if !rec.matchesFilter(filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		records = append(records, rec)
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}

// Delete removes the record object and its index entry.
func (s *S3) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.index[id]
	if !ok {
		return false, nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(entry.Path)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete record object: %w", err)
	}
	delete(s.index, id)
	return true, s.writeIndexLocked(ctx)
}

// Stats aggregates over the cached index.
func (s *S3) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{Backend: "s3"}
	for _, entry := range s.index {
		st.Total++
		switch entry.Status {
		case "success":
			st.SuccessCount++
		case "failure":
			st.FailureCount++
		case "error":
			st.ErrorCount++
		}
		ts := entry.Timestamp
		if st.Oldest == nil || ts.Before(*st.Oldest) {
			t := ts
			st.Oldest = &t
		}
		if st.Newest == nil || ts.After(*st.Newest) {
			t := ts
			st.Newest = &t
		}
	}
	return st, nil
}

// Clear deletes every record object and resets the index.
func (s *S3) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, entry := range s.index {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(entry.Path)),
		})
		if err == nil {
			removed++
		}
	}
	s.index = map[string]indexEntry{}
	return removed, s.writeIndexLocked(ctx)
}

// Close is a no-op; the index is written on every mutation.
func (s *S3) Close() error { return nil }

// RebuildIndex scans the bucket prefix and reconstructs the index from the
// record objects themselves. Used when the index object is lost.
func (s *S3) RebuildIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rebuilt := map[string]indexEntry{}
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to list bucket: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json.gz") {
				continue
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
			rec, err := s.load(ctx, rel)
			if err != nil {
				continue
			}
			rebuilt[rec.ID] = indexEntry{
				Path:      rel,
				Timestamp: rec.Timestamp.UTC(),
				Status:    rec.Status,
				PlanName:  rec.PlanName,
				Tags:      rec.Tags,
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	s.index = rebuilt
	return len(rebuilt), s.writeIndexLocked(ctx)
}

func sortedEntries(index map[string]indexEntry) []indexEntry {
	entries := make([]indexEntry, 0, len(index))
	for _, e := range index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}
