package activity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(serverURL string) *Client {
	c := NewClient("remcostoeten", "tauri-nextjs-template", "master", "")
	c.baseURL = serverURL
	return c
}

const commitsJSON = `[
	{"sha":"abc123","html_url":"https://example.com/c/abc123",
	 "commit":{"message":"fix footer","author":{"name":"Remco","email":"x@y.com","date":"2025-01-02T03:04:05Z"}}},
	{"sha":"def456","html_url":"https://example.com/c/def456",
	 "commit":{"message":"initial commit","author":{"name":"Remco","email":"x@y.com","date":"2025-01-01T00:00:00Z"}}}
]`

func TestFetchCommits(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/vnd.github.v3+json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.URL.Query().Get("sha"); got != "master" {
			t.Errorf("sha = %q", got)
		}
		if got := r.URL.Query().Get("per_page"); got != "2" {
			t.Errorf("per_page = %q", got)
		}
		w.Write([]byte(commitsJSON))
	}))
	defer ts.Close()

	commits, err := newTestClient(ts.URL).FetchCommits(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchCommits: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("len = %d, want 2", len(commits))
	}
	if commits[0].SHA != "abc123" || commits[0].Commit.Message != "fix footer" {
		t.Errorf("unexpected first commit %+v", commits[0])
	}
}

func TestTotalCommitCountFromLinkHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link",
			`<https://api.github.com/x?page=2>; rel="next", <https://api.github.com/x?page=137>; rel="last"`)
		w.Write([]byte(`[{"sha":"abc123"}]`))
	}))
	defer ts.Close()

	count, err := newTestClient(ts.URL).TotalCommitCount(context.Background())
	if err != nil {
		t.Fatalf("TotalCommitCount: %v", err)
	}
	if count != 137 {
		t.Errorf("count = %d, want 137", count)
	}
}

func TestTotalCommitCountWithoutLinkHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"sha":"abc123"}]`))
	}))
	defer ts.Close()

	count, err := newTestClient(ts.URL).TotalCommitCount(context.Background())
	if err != nil {
		t.Fatalf("TotalCommitCount: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestCommitsServesStaleCacheOnRateLimit(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusOK)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Write([]byte(commitsJSON))
	}))
	defer ts.Close()

	// Zero TTL expires the cache immediately, forcing a refetch.
	svc := NewService(newTestClient(ts.URL), NewCache(0), 0, nil)

	feed, err := svc.Commits(context.Background(), 2)
	if err != nil {
		t.Fatalf("warm-up fetch: %v", err)
	}
	if feed.Stale {
		t.Error("fresh fetch must not be stale")
	}

	status.Store(http.StatusForbidden)
	feed, err = svc.Commits(context.Background(), 2)
	if err != nil {
		t.Fatalf("rate-limited fetch should fall back to cache: %v", err)
	}
	if !feed.Stale {
		t.Error("fallback feed must be marked stale")
	}
	if len(feed.Commits) != 2 {
		t.Errorf("fallback feed has %d commits, want 2", len(feed.Commits))
	}
}

func TestCommitsErrorsWithoutCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	svc := NewService(newTestClient(ts.URL), NewCache(time.Minute), time.Minute, nil)
	if _, err := svc.Commits(context.Background(), 2); err == nil {
		t.Fatal("expected an error when no cache exists")
	}
}

func TestCommitsServesFreshCacheWithoutRefetch(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(commitsJSON))
	}))
	defer ts.Close()

	svc := NewService(newTestClient(ts.URL), NewCache(time.Minute), time.Minute, nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Commits(context.Background(), 2); err != nil {
			t.Fatalf("Commits: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestVersionFromCommitCount(t *testing.T) {
	tests := []struct {
		count   int
		display string
	}{
		{0, "0.1.0"},
		{7, "0.1.7"},
		{42, "0.5.2"},
		{137, "1.4.7"},
		{250, "2.6.0"},
	}
	for _, tt := range tests {
		if got := VersionFromCommitCount(tt.count).Display; got != tt.display {
			t.Errorf("VersionFromCommitCount(%d) = %q, want %q", tt.count, got, tt.display)
		}
	}
}
