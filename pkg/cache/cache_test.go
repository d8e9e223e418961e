package cache

import (
	"testing"
	"time"

	"github.com/aqakit/brain/pkg/utdl"
)

func testPlan(name string) *utdl.Plan {
	p := utdl.NewPlan(name, "http://localhost:8000")
	p.Steps = []utdl.Step{{
		ID:     "ping",
		Action: utdl.ActionHTTPRequest,
		Params: map[string]interface{}{"method": "GET", "path": "/ping"},
	}}
	return p
}

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("Test the login flow", "http://API.example.com", "", "")
	b := Fingerprint("  test the login flow  ", "http://api.example.com", "", "")
	if a != b {
		t.Error("fingerprint must ignore case and surrounding whitespace")
	}
	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}

	c := Fingerprint("test the login flow", "http://api.example.com", "openai", "gpt-4o")
	if c == a {
		t.Error("provider and model must contribute to the fingerprint")
	}

	d := Fingerprint("test the login flow", "http://api.example.com", " OpenAI ", "GPT-4o")
	if d != c {
		t.Error("fingerprint must normalize provider and model the same way")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fp := Fingerprint("login flow", "http://x", "mock", "")
	plan := testPlan("login")
	if err := c.Put(fp, plan, "login flow", "http://x", "mock", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(fp)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Meta.Name != "login" || len(got.Steps) != 1 {
		t.Errorf("cached plan mangled: %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get("deadbeefdeadbeef"); ok || err != nil {
		t.Errorf("expected clean miss, ok=%v err=%v", ok, err)
	}
}

func TestHitCounting(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fp := Fingerprint("r", "u", "", "")
	if err := c.Put(fp, testPlan("p"), "r", "u", "", ""); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, ok, _ := c.Get(fp); !ok {
			t.Fatal("unexpected miss")
		}
	}
	st, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalHits != 3 {
		t.Errorf("total hits = %d, want 3", st.TotalHits)
	}
}

func TestExpiryAndCleanup(t *testing.T) {
	c, err := New(t.TempDir(), WithTTLDays(1))
	if err != nil {
		t.Fatal(err)
	}
	fresh := Fingerprint("fresh", "u", "", "")
	stale := Fingerprint("stale", "u", "", "")
	if err := c.Put(fresh, testPlan("fresh"), "fresh", "u", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(stale, testPlan("stale"), "stale", "u", "", ""); err != nil {
		t.Fatal(err)
	}

	// Age the stale entry past the TTL by rewriting its index row.
	c.mu.Lock()
	index, _ := c.readIndex()
	e := index[stale]
	e.CreatedAt = time.Now().Add(-48 * time.Hour)
	index[stale] = e
	if err := c.writeIndex(index); err != nil {
		c.mu.Unlock()
		t.Fatal(err)
	}
	c.mu.Unlock()

	if _, ok, _ := c.Get(stale); ok {
		t.Error("expired entry served as hit")
	}
	if _, ok, _ := c.Get(fresh); !ok {
		t.Error("fresh entry lost")
	}

	// Get already evicted the stale entry; cleanup finds nothing left.
	removed, err := c.Cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("cleanup removed %d, want 0", removed)
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	c, err := New(t.TempDir(), WithTTLDays(1))
	if err != nil {
		t.Fatal(err)
	}
	fp := Fingerprint("old", "u", "", "")
	if err := c.Put(fp, testPlan("old"), "old", "u", "", ""); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	index, _ := c.readIndex()
	e := index[fp]
	e.CreatedAt = time.Now().Add(-72 * time.Hour)
	index[fp] = e
	_ = c.writeIndex(index)
	c.mu.Unlock()

	removed, err := c.Cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("cleanup removed %d, want 1", removed)
	}
	st, _ := c.Stats()
	if st.Entries != 0 {
		t.Errorf("entries after cleanup = %d", st.Entries)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fp := Fingerprint("r", "u", "", "")
	if err := c.Put(fp, testPlan("p"), "r", "u", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(fp); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(fp); ok {
		t.Error("invalidated entry still served")
	}
	// Invalidating twice is fine.
	if err := c.Invalidate(fp); err != nil {
		t.Errorf("second Invalidate: %v", err)
	}

	if err := c.Put(fp, testPlan("p"), "r", "u", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	st, _ := c.Stats()
	if st.Entries != 0 {
		t.Errorf("entries after clear = %d", st.Entries)
	}
}

func TestStatsEmpty(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	st, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 || st.TotalBytes != 0 {
		t.Errorf("empty stats = %+v", st)
	}
}
