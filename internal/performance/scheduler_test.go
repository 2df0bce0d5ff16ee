package performance_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/metrics"
)

// createTestServer creates a test HTTP server
func createTestServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	}))
}

// createTestScenario creates a GET scenario with a fixed think-time
func createTestScenario(serverURL string, think time.Duration) *performance.Scenario {
	return &performance.Scenario{
		Name: "scheduler-test",
		Request: &performance.RequestTemplate{
			Method:  http.MethodGet,
			URL:     serverURL,
			Timeout: 5 * time.Second,
		},
		ThinkTime: performance.FixedThinkTime(think),
	}
}

func newTestScheduler(t *testing.T, serverURL string, capacity int) (*performance.VUScheduler, *metrics.Recorder) {
	t.Helper()
	rec := metrics.NewRecorder()
	s := performance.NewVUScheduler(createTestScenario(serverURL, 10*time.Millisecond), rec, performance.DefaultHTTPClientConfig(), capacity, nil)
	t.Cleanup(func() {
		s.StopAll()
		s.Wait(5 * time.Second)
		s.Close()
	})
	return s, rec
}

func TestDefaultHTTPClientConfig(t *testing.T) {
	config := performance.DefaultHTTPClientConfig()

	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", config.Timeout)
	}
	if config.MaxIdleConns != 1000 {
		t.Errorf("MaxIdleConns = %d, want 1000", config.MaxIdleConns)
	}
	if config.MaxIdleConnsPerHost != 100 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 100", config.MaxIdleConnsPerHost)
	}
	if config.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should be false by default")
	}
}

func TestVUScheduler_ScaleUpAndDown(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	s, rec := newTestScheduler(t, server.URL, 0)
	ctx := context.Background()

	if _, err := s.Scale(ctx, 5); err != nil {
		t.Fatalf("Scale(5) error: %v", err)
	}
	if got := s.ActiveCount(); got != 5 {
		t.Errorf("ActiveCount() = %d, want 5", got)
	}
	if got := rec.ActiveVUs(); got != 5 {
		t.Errorf("recorder ActiveVUs() = %d, want 5", got)
	}

	before := s.ActiveVUs()
	stopped, err := s.Scale(ctx, 2)
	if err != nil {
		t.Fatalf("Scale(2) error: %v", err)
	}
	if len(stopped) != 3 {
		t.Fatalf("Scale(2) signalled %d VUs, want 3", len(stopped))
	}

	// Oldest first.
	for i, vu := range stopped {
		if vu != before[i] {
			t.Errorf("stopped[%d] = %s, want %s", i, vu.ID, before[i].ID)
		}
	}
	if got := s.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.WaitFor(waitCtx, stopped); err != nil {
		t.Fatalf("WaitFor() error: %v", err)
	}
	for _, vu := range stopped {
		if vu.State() != performance.VUStateStopped {
			t.Errorf("%s state = %v, want stopped", vu.ID, vu.State())
		}
	}
	if got := s.StoppingCount(); got != 0 {
		t.Errorf("StoppingCount() = %d, want 0", got)
	}
}

func TestVUScheduler_SlotReuseBumpsGeneration(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	s, _ := newTestScheduler(t, server.URL, 0)
	ctx := context.Background()

	first, err := s.Spawn(ctx)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	stopped := s.StopAll()
	if err := s.WaitFor(ctx, stopped); err != nil {
		t.Fatalf("WaitFor() error: %v", err)
	}

	second, err := s.Spawn(ctx)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	if second.ID.Slot != first.ID.Slot {
		t.Errorf("slot not reused: first %s, second %s", first.ID, second.ID)
	}
	if second.ID.Generation != first.ID.Generation+1 {
		t.Errorf("generation = %d, want %d", second.ID.Generation, first.ID.Generation+1)
	}
	if s.Slots() != 1 {
		t.Errorf("Slots() = %d, want 1", s.Slots())
	}
}

func TestVUScheduler_NoReuseWhileStopping(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()

	s, _ := newTestScheduler(t, server.URL, 0)
	ctx := context.Background()

	first, err := s.Spawn(ctx)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	s.StopAll()

	// first is still in its request, so its slot must stay occupied.
	second, err := s.Spawn(ctx)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if second.ID == first.ID || second.ID.Slot == first.ID.Slot {
		t.Errorf("slot %d reused while its VU was still stopping", first.ID.Slot)
	}

	close(release)
}

func TestVUScheduler_CapacityExhausted(t *testing.T) {
	server := createTestServer()
	defer server.Close()

	s, _ := newTestScheduler(t, server.URL, 3)

	_, err := s.Scale(context.Background(), 4)
	if !errors.Is(err, performance.ErrPoolExhausted) {
		t.Fatalf("Scale(4) error = %v, want ErrPoolExhausted", err)
	}
	if got := s.ActiveCount(); got != 3 {
		t.Errorf("ActiveCount() = %d, want 3", got)
	}
}

func TestVUScheduler_ScaleWaitsForStoppingVUs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, _ := newTestScheduler(t, server.URL, 3)

	if _, err := s.Scale(context.Background(), 3); err != nil {
		t.Fatalf("Scale(3) error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Scale(context.Background(), 1); err != nil {
		t.Fatalf("Scale(1) error: %v", err)
	}
	if s.StoppingCount() == 0 {
		t.Fatal("expected VUs still finishing their request")
	}

	if _, err := s.Scale(context.Background(), 3); err != nil {
		t.Fatalf("Scale(3) after scale-down error = %v, want nil", err)
	}
	if got := s.ActiveCount(); got != 3 {
		t.Errorf("ActiveCount() = %d, want 3", got)
	}
	if got := s.Slots(); got != 3 {
		t.Errorf("Slots() = %d, want 3", got)
	}
}

func TestVUScheduler_ScaleWaitCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	s := performance.NewVUScheduler(createTestScenario(server.URL, 0), metrics.NewRecorder(), performance.DefaultHTTPClientConfig(), 2, nil)
	defer s.Close()

	if _, err := s.Scale(context.Background(), 2); err != nil {
		t.Fatalf("Scale(2) error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Scale(context.Background(), 0); err != nil {
		t.Fatalf("Scale(0) error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Scale(ctx, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Scale(2) error = %v, want context.DeadlineExceeded", err)
	}
}

func TestVUScheduler_WaitTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	s := performance.NewVUScheduler(createTestScenario(server.URL, 0), metrics.NewRecorder(), performance.DefaultHTTPClientConfig(), 0, nil)
	defer s.Close()

	if _, err := s.Scale(context.Background(), 2); err != nil {
		t.Fatalf("Scale(2) error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	s.StopAll()

	if s.Wait(50 * time.Millisecond) {
		t.Error("Wait() returned true while requests were in flight")
	}
}
