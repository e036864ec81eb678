package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/wptdiff/metrics"
	"github.com/pithecene-io/wptdiff/poll"
	"github.com/pithecene-io/wptdiff/types"
)

const testInterval = 5 * time.Millisecond

func envelope(t *testing.T, code int, text string, data any) types.Envelope {
	t.Helper()
	env := types.Envelope{StatusCode: code, StatusText: text}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal envelope data: %v", err)
		}
		env.Data = raw
	}
	return env
}

// fakeService scripts every remote call and records what it saw.
type fakeService struct {
	t *testing.T

	mu          sync.Mutex
	launched    map[string]types.LaunchOptions
	statusCalls map[string]int
	resultCalls int
	videoIDs    []string
	fetchCalls  int

	// pendingPolls is how many Pending status envelopes precede Ready.
	pendingPolls int
	// startFail maps a URL to a rejection envelope.
	startFail map[string]types.Envelope
	// statusFail maps a test id to a terminal failure envelope.
	statusFail map[string]types.Envelope
	// statusGate, when set, blocks GetStatus until closed.
	statusGate chan struct{}
	// alwaysPending keeps every status Pending.
	alwaysPending bool
	videoFail     *types.Envelope
	resultFail    *types.Envelope
}

func newFakeService(t *testing.T) *fakeService {
	return &fakeService{
		t:           t,
		launched:    make(map[string]types.LaunchOptions),
		statusCalls: make(map[string]int),
		startFail:   make(map[string]types.Envelope),
		statusFail:  make(map[string]types.Envelope),
	}
}

func testIDFor(pageURL string) string {
	return "t-" + strings.TrimPrefix(pageURL, "https://")
}

func (f *fakeService) StartTest(_ context.Context, pageURL string, opts types.LaunchOptions) (types.Envelope, error) {
	f.mu.Lock()
	f.launched[pageURL] = opts
	f.mu.Unlock()

	if env, ok := f.startFail[pageURL]; ok {
		return env, nil
	}
	return envelope(f.t, 200, "Ok", map[string]any{
		"testId":  testIDFor(pageURL),
		"userUrl": "https://wpt.example/result/" + testIDFor(pageURL) + "/",
		"jsonUrl": "https://wpt.example/jsonResult.php?test=" + testIDFor(pageURL),
	}), nil
}

func (f *fakeService) GetStatus(ctx context.Context, testID string) (types.Envelope, error) {
	if f.statusGate != nil {
		select {
		case <-f.statusGate:
		case <-ctx.Done():
			return types.Envelope{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.statusCalls[testID]++
	n := f.statusCalls[testID]
	f.mu.Unlock()

	if env, ok := f.statusFail[testID]; ok {
		return env, nil
	}
	if f.alwaysPending || n <= f.pendingPolls {
		return envelope(f.t, 101, "Test Started", map[string]any{"id": testID}), nil
	}
	pageURL := "https://" + strings.TrimPrefix(testID, "t-")
	return envelope(f.t, 200, "Test Complete", map[string]any{
		"id":       testID,
		"testInfo": map[string]any{"url": pageURL},
	}), nil
}

func (f *fakeService) GetResults(_ context.Context, testID string) (types.Envelope, error) {
	f.mu.Lock()
	f.resultCalls++
	f.mu.Unlock()

	if f.resultFail != nil {
		return *f.resultFail, nil
	}
	return envelope(f.t, 200, "Ok", map[string]any{
		"id":      testID,
		"average": map[string]any{"firstView": map[string]any{"SpeedIndex": 1200}},
	}), nil
}

func (f *fakeService) CreateVideo(_ context.Context, testIDs string, _ types.VideoOptions) (types.Envelope, error) {
	f.mu.Lock()
	f.videoIDs = append(f.videoIDs, testIDs)
	f.mu.Unlock()

	if f.videoFail != nil {
		return *f.videoFail, nil
	}
	return envelope(f.t, 200, "Ok", map[string]any{
		"videoId": "v-1",
		"jsonUrl": "/video/view.php?f=json&id=v-1",
	}), nil
}

func (f *fakeService) FetchJSON(_ context.Context, rawURL string) (types.Envelope, error) {
	f.mu.Lock()
	f.fetchCalls++
	n := f.fetchCalls
	f.mu.Unlock()

	if rawURL != "/video/view.php?f=json&id=v-1" {
		return types.Envelope{}, fmt.Errorf("unexpected url %q", rawURL)
	}
	if n == 1 {
		return envelope(f.t, 100, "Video is being generated", nil), nil
	}
	return envelope(f.t, 200, "Ok", map[string]any{
		"videoId": "v-1",
		"embed":   "https://wpt.example/video/view.php?embed=1&id=v-1",
	}), nil
}

func (f *fakeService) totalStatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.statusCalls {
		total += n
	}
	return total
}

func newTestOrchestrator(svc Service, collector *metrics.Collector) *Orchestrator {
	return New(svc, Config{
		Host:         "wpt.example",
		APIKey:       "secret",
		Options:      types.TestOptions{Location: "Dulles", Connectivity: "Cable"},
		Label:        "compare",
		PollInterval: testInterval,
		Collector:    collector,
	})
}

func twoURLs() types.RunRequest {
	return types.RunRequest{
		URLs:   []string{"https://a.example", "https://b.example"},
		Labels: []string{"before", "after"},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	svc := newFakeService(t)
	svc.pendingPolls = 2
	collector := metrics.NewCollector("wpt.example", "")
	o := newTestOrchestrator(svc, collector)

	result, err := o.Run(t.Context(), twoURLs())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantIDs := map[string]string{
		"https://a.example": "t-a.example",
		"https://b.example": "t-b.example",
	}
	for u, id := range wantIDs {
		if got := result.IDs[u]; got != id {
			t.Errorf("IDs[%s] = %q, want %q", u, got, id)
		}
	}

	test := result.Tests["t-a.example"]
	if test == nil {
		t.Fatal("Tests missing t-a.example")
	}
	if got := test["webReportUrl"]; got != "http://wpt.example/result/t-a.example/" {
		t.Errorf("webReportUrl = %v", got)
	}
	if len(result.Results) != 2 {
		t.Errorf("len(Results) = %d, want 2", len(result.Results))
	}
	if result.Video["videoId"] != "v-1" {
		t.Errorf("Video = %v", result.Video)
	}
	if result.Player["embed"] == nil {
		t.Errorf("Player = %v", result.Player)
	}

	if len(result.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(result.Tasks))
	}
	for i, want := range []struct{ url, label string }{
		{"https://a.example", "before"},
		{"https://b.example", "after"},
	} {
		task := result.Tasks[i]
		if task.URL != want.url || task.Label != want.label {
			t.Errorf("Tasks[%d] = %s/%s, want %s/%s", i, task.URL, task.Label, want.url, want.label)
		}
		if task.State != types.TaskComplete {
			t.Errorf("Tasks[%d].State = %s, want complete", i, task.State)
		}
		if task.Detail == nil || task.Detail["webReportUrl"] != result.Tests[task.ID]["webReportUrl"] {
			t.Errorf("Tasks[%d].Detail = %v, want the status detail", i, task.Detail)
		}
	}

	if got := svc.videoIDs; len(got) != 1 || got[0] != "t-a.example,t-b.example" {
		t.Errorf("CreateVideo ids = %v", got)
	}
	opts := svc.launched["https://b.example"]
	if opts.Label != "after" || opts.Location != "Dulles" || !opts.Video {
		t.Errorf("launch options = %+v", opts)
	}
	if result.RunID == "" || o.LastRunID() != result.RunID {
		t.Errorf("RunID = %q, LastRunID = %q", result.RunID, o.LastRunID())
	}

	s := collector.Snapshot()
	if s.RunsStarted != 1 || s.RunsCompleted != 1 || s.TestsLaunched != 2 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.ResultsFetched != 2 || s.VideosCreated != 1 || s.PlayersFetched != 1 {
		t.Errorf("snapshot = %+v", s)
	}
	// 3 status polls per test plus 2 player polls.
	if s.StatusPolls != 8 {
		t.Errorf("StatusPolls = %d, want 8", s.StatusPolls)
	}

	if o.Running() {
		t.Error("Running() = true after completion")
	}
}

func TestRun_SequentialRunsGetFreshState(t *testing.T) {
	o := newTestOrchestrator(newFakeService(t), nil)

	first, err := o.Run(t.Context(), twoURLs())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	second, err := o.Run(t.Context(), types.RunRequest{
		URLs: []string{"https://c.example", "https://d.example"},
	})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if first.RunID == second.RunID {
		t.Errorf("run ids collide: %s", first.RunID)
	}
	if _, ok := second.IDs["https://a.example"]; ok {
		t.Error("second result carries state from the first run")
	}
	if second.Tasks[0].Label != "compare" {
		t.Errorf("fallback label = %q, want %q", second.Tasks[0].Label, "compare")
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	svc := newFakeService(t)
	svc.statusGate = make(chan struct{})
	collector := metrics.NewCollector("wpt.example", "")
	o := newTestOrchestrator(svc, collector)

	type outcome struct {
		result *types.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := o.Run(t.Context(), twoURLs())
		done <- outcome{r, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !o.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := o.Run(t.Context(), twoURLs())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	if err.Error() != "already running" {
		t.Errorf("error text = %q", err.Error())
	}

	close(svc.statusGate)
	first := <-done
	if first.err != nil {
		t.Fatalf("first Run() error = %v", first.err)
	}
	if len(first.result.Tasks) != 2 {
		t.Errorf("first run was disturbed: %d tasks", len(first.result.Tasks))
	}

	if got := collector.Snapshot().RunsRejected; got != 1 {
		t.Errorf("RunsRejected = %d, want 1", got)
	}
}

func TestRun_SeparateInstancesAreIndependent(t *testing.T) {
	svc := newFakeService(t)
	svc.statusGate = make(chan struct{})
	busy := newTestOrchestrator(svc, nil)

	done := make(chan error, 1)
	go func() {
		_, err := busy.Run(t.Context(), twoURLs())
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !busy.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	other := newTestOrchestrator(newFakeService(t), nil)
	if _, err := other.Run(t.Context(), twoURLs()); err != nil {
		t.Fatalf("independent Run() error = %v", err)
	}

	close(svc.statusGate)
	if err := <-done; err != nil {
		t.Fatalf("busy Run() error = %v", err)
	}
}

func TestRun_LaunchRejected(t *testing.T) {
	svc := newFakeService(t)
	svc.startFail["https://b.example"] = envelope(t, 400, "Invalid URL", nil)
	collector := metrics.NewCollector("wpt.example", "")
	o := newTestOrchestrator(svc, collector)

	_, err := o.Run(t.Context(), twoURLs())

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("Run() error = %v, want *LaunchError", err)
	}
	if launchErr.StatusText != "Invalid URL" || launchErr.StatusCode != 400 {
		t.Errorf("LaunchError = %+v", launchErr)
	}
	if launchErr.URL != "https://b.example" {
		t.Errorf("LaunchError.URL = %q", launchErr.URL)
	}
	if n := svc.totalStatusCalls(); n != 0 {
		t.Errorf("status polled %d times after launch failure", n)
	}
	if o.Running() {
		t.Error("lock held after failure")
	}
	if got := DetermineOutcome(err).Status; got != OutcomeLaunchFailed {
		t.Errorf("outcome = %s", got)
	}

	delete(svc.startFail, "https://b.example")
	if _, err := o.Run(t.Context(), twoURLs()); err != nil {
		t.Fatalf("Run() after failure error = %v", err)
	}

	s := collector.Snapshot()
	if s.RunsFailed != 1 || s.RunsCompleted != 1 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestRun_LaunchMissingTestID(t *testing.T) {
	svc := newFakeService(t)
	svc.startFail["https://a.example"] = envelope(t, 200, "Ok", map[string]any{"userUrl": "x"})
	o := newTestOrchestrator(svc, nil)

	_, err := o.Run(t.Context(), twoURLs())

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) || launchErr.URL != "https://a.example" {
		t.Fatalf("Run() error = %v, want *LaunchError for a.example", err)
	}
}

func TestRun_StatusFailed(t *testing.T) {
	svc := newFakeService(t)
	svc.statusFail["t-b.example"] = envelope(t, 404, "Test not found", nil)
	o := newTestOrchestrator(svc, nil)

	_, err := o.Run(t.Context(), twoURLs())

	var pollErr *PollFailure
	if !errors.As(err, &pollErr) {
		t.Fatalf("Run() error = %v, want *PollFailure", err)
	}
	if pollErr.Stage != StageTests {
		t.Errorf("Stage = %s, want tests", pollErr.Stage)
	}
	if pollErr.ProbeID != "t-b.example" {
		t.Errorf("ProbeID = %q, want t-b.example", pollErr.ProbeID)
	}
	var failed *poll.FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error chain lacks *poll.FailedError: %v", err)
	}
	if failed.Error() != "Test not found" || failed.ProbeID != "t-b.example" {
		t.Errorf("FailedError = %q (%s)", failed.Error(), failed.ProbeID)
	}
	if len(svc.videoIDs) != 0 {
		t.Error("video created after poll failure")
	}
	if o.Running() {
		t.Error("lock held after failure")
	}
}

func TestRun_PollAttemptsExhausted(t *testing.T) {
	svc := newFakeService(t)
	svc.alwaysPending = true
	o := New(svc, Config{PollInterval: testInterval, PollMaxAttempts: 3})

	_, err := o.Run(t.Context(), twoURLs())

	if !errors.Is(err, poll.ErrAttemptsExhausted) {
		t.Fatalf("Run() error = %v, want ErrAttemptsExhausted", err)
	}
	var pollErr *PollFailure
	if !errors.As(err, &pollErr) {
		t.Errorf("error is not a *PollFailure: %v", err)
	}
}

func TestRun_VideoRejected(t *testing.T) {
	svc := newFakeService(t)
	fail := envelope(t, 500, "Video creation failed", nil)
	svc.videoFail = &fail
	collector := metrics.NewCollector("wpt.example", "")
	o := newTestOrchestrator(svc, collector)

	_, err := o.Run(t.Context(), twoURLs())

	var artifactErr *ArtifactError
	if !errors.As(err, &artifactErr) {
		t.Fatalf("Run() error = %v, want *ArtifactError", err)
	}
	if artifactErr.StatusText != "Video creation failed" || artifactErr.StatusCode != 500 {
		t.Errorf("ArtifactError = %+v", artifactErr)
	}
	if got := collector.Snapshot().VideoFailures; got != 1 {
		t.Errorf("VideoFailures = %d, want 1", got)
	}
	if o.Running() {
		t.Error("lock held after failure")
	}
}

func TestRun_ResultRejected(t *testing.T) {
	svc := newFakeService(t)
	fail := envelope(t, 400, "Invalid test", nil)
	svc.resultFail = &fail
	o := newTestOrchestrator(svc, nil)

	_, err := o.Run(t.Context(), twoURLs())

	var resultErr *ResultError
	if !errors.As(err, &resultErr) {
		t.Fatalf("Run() error = %v, want *ResultError", err)
	}
	if resultErr.StatusText != "Invalid test" {
		t.Errorf("ResultError = %+v", resultErr)
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  types.RunRequest
		want error
	}{
		{"single url", types.RunRequest{URLs: []string{"https://a.example"}}, types.ErrTooFewURLs},
		{"no urls", types.RunRequest{}, types.ErrTooFewURLs},
		{"label mismatch", types.RunRequest{
			URLs:   []string{"https://a.example", "https://b.example"},
			Labels: []string{"only"},
		}, types.ErrLabelCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)
			o := newTestOrchestrator(svc, nil)

			_, err := o.Run(t.Context(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run() error = %v, want %v", err, tt.want)
			}
			if !IsInvalidRequest(err) {
				t.Error("IsInvalidRequest() = false")
			}
			if len(svc.launched) != 0 {
				t.Error("tests launched for an invalid request")
			}
			if o.Running() {
				t.Error("lock held after validation failure")
			}
		})
	}
}

func TestRun_ConnectivityWithoutLocation(t *testing.T) {
	svc := newFakeService(t)
	o := New(svc, Config{PollInterval: testInterval})

	req := twoURLs()
	req.Options = &types.TestOptions{Connectivity: "3G"}

	_, err := o.Run(t.Context(), req)
	if !errors.Is(err, types.ErrConnectivityWithoutLocation) {
		t.Fatalf("Run() error = %v, want ErrConnectivityWithoutLocation", err)
	}
	if !IsInvalidRequest(err) {
		t.Error("IsInvalidRequest() = false")
	}
	if len(svc.launched) != 0 {
		t.Error("tests launched without a location for the connectivity profile")
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	svc := newFakeService(t)
	svc.alwaysPending = true
	o := newTestOrchestrator(svc, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	_, err := o.Run(ctx, twoURLs())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}
	var pollErr *PollFailure
	if errors.As(err, &pollErr) {
		t.Error("cancellation reported as a poll failure")
	}
	if got := DetermineOutcome(err).Status; got != OutcomeCanceled {
		t.Errorf("outcome = %s", got)
	}
	if o.Running() {
		t.Error("lock held after cancellation")
	}
}

func TestRun_RequestOverridesDefaults(t *testing.T) {
	svc := newFakeService(t)
	o := newTestOrchestrator(svc, nil)

	public := false
	req := twoURLs()
	req.Options = &types.TestOptions{Connectivity: "3G", Mobile: true}
	req.Private = &public

	if _, err := o.Run(t.Context(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	opts := svc.launched["https://a.example"]
	if opts.Connectivity != "3G" || opts.Location != "Dulles" {
		t.Errorf("location/connectivity = %q/%q", opts.Location, opts.Connectivity)
	}
	if !opts.Mobile || opts.Private {
		t.Errorf("flags = %+v", opts)
	}
}

func TestRun_VisibilityDefaults(t *testing.T) {
	public := false
	tests := []struct {
		name        string
		private     *bool
		wantPrivate bool
	}{
		{"unset config is private", nil, true},
		{"config opts out", &public, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)
			o := New(svc, Config{PollInterval: testInterval, Private: tt.private})

			if _, err := o.Run(t.Context(), twoURLs()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			for _, u := range twoURLs().URLs {
				if got := svc.launched[u].Private; got != tt.wantPrivate {
					t.Errorf("%s launched with Private=%v, want %v", u, got, tt.wantPrivate)
				}
			}
		})
	}
}

func TestAccessors(t *testing.T) {
	o := newTestOrchestrator(newFakeService(t), nil)
	if o.Host() != "wpt.example" || o.APIKey() != "secret" {
		t.Errorf("Host/APIKey = %q/%q", o.Host(), o.APIKey())
	}

	def := New(newFakeService(t), Config{})
	if def.Host() != "www.webpagetest.org" {
		t.Errorf("default Host = %q", def.Host())
	}
	if def.LastRunID() != "" {
		t.Errorf("LastRunID before any run = %q", def.LastRunID())
	}
}

func TestWebReportURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"wpt.example", "http://wpt.example/result/abc/"},
		{"https://wpt.example/", "https://wpt.example/result/abc/"},
	}
	for _, tt := range tests {
		o := New(nil, Config{Host: tt.host})
		if got := o.webReportURL("abc"); got != tt.want {
			t.Errorf("webReportURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
