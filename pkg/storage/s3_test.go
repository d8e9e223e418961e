package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// stubS3 is an in-memory object store implementing the client slice the
// backend needs.
type stubS3 struct {
	objects map[string][]byte
}

func newStubS3() *stubS3 {
	return &stubS3{objects: map[string][]byte{}}
}

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	s.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := s.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (s *stubS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(s.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (s *stubS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func openStubS3(t *testing.T) (*S3, *stubS3) {
	t.Helper()
	stub := newStubS3()
	backend, err := newS3WithClient(context.Background(), stub, S3Config{
		Bucket: "aqa-history",
		Prefix: "history",
	})
	if err != nil {
		t.Fatal(err)
	}
	return backend, stub
}

func TestS3SaveLayoutAndRoundTrip(t *testing.T) {
	backend, stub := openStubS3(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	rec := testRecord("s30000000001", "success", ts)
	if err := backend.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, ok := stub.objects["history/2026-08-25/s30000000001.json.gz"]; !ok {
		t.Errorf("record key layout wrong, have: %v", keysOf(stub))
	}
	if _, ok := stub.objects["history/index.json"]; !ok {
		t.Error("index object missing")
	}

	got, err := backend.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PlanName != "smoke" || !got.Timestamp.Equal(ts) {
		t.Errorf("round trip: %+v", got)
	}
}

func TestS3ListAndStatsFromIndex(t *testing.T) {
	backend, _ := openStubS3(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{"success", "failure", "success"} {
		rec := testRecord(fmt.Sprintf("s3l%09d", i), status, base.AddDate(0, 0, i))
		if err := backend.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	all, err := backend.List(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "s3l000000002" {
		t.Errorf("list order: %+v", all)
	}

	failed, err := backend.List(ctx, ListFilter{Status: "failure"})
	if err != nil || len(failed) != 1 {
		t.Fatalf("status filter: %+v, %v", failed, err)
	}

	st, err := backend.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Backend != "s3" || st.Total != 3 || st.SuccessCount != 2 || st.FailureCount != 1 {
		t.Errorf("stats: %+v", st)
	}
}

func TestS3IndexRebuild(t *testing.T) {
	backend, stub := openStubS3(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := testRecord(fmt.Sprintf("s3r%09d", i), "success", time.Now().UTC())
		if err := backend.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	// Lose the index, reopen, rebuild from the record objects.
	delete(stub.objects, "history/index.json")
	reopened, err := newS3WithClient(ctx, stub, S3Config{Bucket: "aqa-history", Prefix: "history"})
	if err != nil {
		t.Fatal(err)
	}
	st, err := reopened.Stats(ctx)
	if err != nil || st.Total != 0 {
		t.Fatalf("before rebuild: %+v, %v", st, err)
	}

	n, err := reopened.RebuildIndex(ctx)
	if err != nil || n != 3 {
		t.Fatalf("RebuildIndex = %d, %v", n, err)
	}
	if _, err := reopened.Get(ctx, "s3r000000001"); err != nil {
		t.Errorf("Get after rebuild: %v", err)
	}
}

func TestS3DeleteAndClear(t *testing.T) {
	backend, stub := openStubS3(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := backend.Save(ctx, testRecord(fmt.Sprintf("s3d%09d", i), "success", time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := backend.Delete(ctx, "s3d000000000")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	ok, err = backend.Delete(ctx, "s3d000000000")
	if err != nil || ok {
		t.Fatalf("repeat delete = %v, %v", ok, err)
	}

	n, err := backend.Clear(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	// Only the index object remains.
	if len(stub.objects) != 1 {
		t.Errorf("leftover objects: %v", keysOf(stub))
	}
}

func keysOf(stub *stubS3) []string {
	keys := make([]string, 0, len(stub.objects))
	for k := range stub.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
