package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgnsrekt/ecoaudit/internal/cdp"
	"github.com/dgnsrekt/ecoaudit/internal/notify"
	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/snapshot"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

type staticCollector struct {
	id    trace.CollectorID
	block trace.Block
	err   error
}

func (c staticCollector) ID() trace.CollectorID { return c.id }

func (c staticCollector) Collect(context.Context, orchestrator.Target) (trace.Block, error) {
	return c.block, c.err
}

var errUnavailable = errors.New("unavailable")

func workingCollectors() []orchestrator.Collector {
	return []orchestrator.Collector{
		staticCollector{id: trace.CollectTransfer, err: errUnavailable},
		staticCollector{id: trace.CollectServer, block: &trace.ServerTraces{Host: "example.com", Green: true, Checked: true}},
		staticCollector{id: trace.CollectScreenshot, block: &trace.ScreenshotTraces{Width: 10, Height: 10, HasDarkMode: true, PowerWatts: 4}},
		staticCollector{id: trace.CollectCSS, err: errUnavailable},
		staticCollector{id: trace.CollectFonts, err: errUnavailable},
		staticCollector{id: trace.CollectConsole, block: &trace.ConsoleTraces{Messages: []trace.ConsoleMessage{}}},
		staticCollector{id: trace.CollectAnimations, block: &trace.AnimationTraces{NotReactive: []trace.Animation{}}},
	}
}

func failingCollectors() []orchestrator.Collector {
	ids := []trace.CollectorID{
		trace.CollectTransfer, trace.CollectServer, trace.CollectScreenshot, trace.CollectCSS,
		trace.CollectFonts, trace.CollectConsole, trace.CollectAnimations,
	}
	out := make([]orchestrator.Collector, 0, len(ids))
	for _, id := range ids {
		out = append(out, staticCollector{id: id, err: errUnavailable})
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	urls    []string
	streams []string
	err     error
}

func (s *recordingSink) Append(pageURL, stream string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, pageURL)
	s.streams = append(s.streams, stream)
	return s.err
}

type recordingNotifier struct {
	got []notify.Summary
	err error
}

func (n *recordingNotifier) Notify(_ context.Context, s notify.Summary) error {
	n.got = append(n.got, s)
	return n.err
}

type fakeBrowser struct {
	connectErr error
	pages      []cdp.PageInfo
}

func (b *fakeBrowser) Connect(context.Context) error { return b.connectErr }
func (b *fakeBrowser) URL() string                  { return "http://127.0.0.1:9222" }
func (b *fakeBrowser) Pages() []cdp.PageInfo        { return b.pages }

func requireCode(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil; want %s", want)
	}
	var coded *CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("error type = %T; want *CodedError", err)
	}
	if coded.Code != want {
		t.Fatalf("code = %q; want %q (%v)", coded.Code, want, err)
	}
}

func TestRunValidation(t *testing.T) {
	s := NewService(Options{Collectors: workingCollectors()})

	tests := []struct {
		name string
		req  RunRequest
	}{
		{name: "empty url", req: RunRequest{URL: "   "}},
		{name: "relative url", req: RunRequest{URL: "/blog"}},
		{name: "ftp scheme", req: RunRequest{URL: "ftp://example.com/file"}},
		{name: "unknown device", req: RunRequest{URL: "https://example.com", Device: "phone"}},
		{name: "unknown location", req: RunRequest{URL: "https://example.com", Location: "atlantis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), tt.req)
			requireCode(t, err, CodeValidation)
		})
	}
	if got := len(s.ListReports(context.Background())); got != 0 {
		t.Fatalf("ListReports() len = %d; want 0", got)
	}
}

func TestRunRecordsReport(t *testing.T) {
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	s := NewService(Options{Collectors: workingCollectors(), Sink: sink, Notifier: notifier, Browser: &fakeBrowser{}})

	report, err := s.Run(context.Background(), RunRequest{URL: " https://example.com/blog ", Device: "Laptop", Location: "sydney"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.URL != "https://example.com/blog" {
		t.Fatalf("URL = %q", report.URL)
	}
	if report.Score == nil {
		t.Fatal("Score = nil; want a score")
	}
	if res := report.Audits["greenserver"]; !res.Meta.Passed {
		t.Fatalf("greenserver = %+v; want passed", res)
	}
	if res := report.Audits["useshttp2"]; !res.Skipped() {
		t.Fatalf("useshttp2 = %+v; want skipped without transfer data", res)
	}

	if len(sink.streams) != 1 || sink.streams[0] != ReportStream || sink.urls[0] != report.URL {
		t.Fatalf("sink calls = %v %v", sink.urls, sink.streams)
	}
	if len(notifier.got) != 1 || notifier.got[0].ReportID != report.ID {
		t.Fatalf("notifications = %+v", notifier.got)
	}

	got, err := s.GetReport(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got != report {
		t.Fatal("GetReport() returned a different report")
	}
	list := s.ListReports(context.Background())
	if len(list) != 1 || list[0].ID != report.ID || list[0].Profile != "default" {
		t.Fatalf("ListReports() = %+v", list)
	}
}

func TestRunWithoutCollectorData(t *testing.T) {
	sink := &recordingSink{}
	s := NewService(Options{Collectors: failingCollectors(), Sink: sink})

	_, err := s.Run(context.Background(), RunRequest{URL: "https://example.com"})
	requireCode(t, err, CodeCollectionFailed)
	if !errors.Is(err, orchestrator.ErrNoCollectorData) {
		t.Fatalf("error = %v; want to wrap ErrNoCollectorData", err)
	}
	if len(sink.urls) != 0 {
		t.Fatalf("sink calls = %v; want none", sink.urls)
	}
	if got := len(s.ListReports(context.Background())); got != 0 {
		t.Fatalf("ListReports() len = %d; want 0", got)
	}
}

func TestRunBrowserUnavailable(t *testing.T) {
	s := NewService(Options{Collectors: workingCollectors(), Browser: &fakeBrowser{connectErr: errors.New("connection refused")}})
	_, err := s.Run(context.Background(), RunRequest{URL: "https://example.com"})
	requireCode(t, err, CodeBrowserUnavailable)
}

func TestRunIgnoresSinkAndNotifierFailures(t *testing.T) {
	s := NewService(Options{
		Collectors: workingCollectors(),
		Sink:       &recordingSink{err: errors.New("disk full")},
		Notifier:   &recordingNotifier{err: errors.New("webhook down")},
	})
	if _, err := s.Run(context.Background(), RunRequest{URL: "https://example.com"}); err != nil {
		t.Fatalf("Run() error = %v; want nil", err)
	}
}

func TestReportCacheEvictsOldest(t *testing.T) {
	s := NewService(Options{Collectors: workingCollectors(), CacheSize: 2})

	var ids []string
	for range 3 {
		r, err := s.Run(context.Background(), RunRequest{URL: "https://example.com"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		ids = append(ids, r.ID)
	}

	list := s.ListReports(context.Background())
	if len(list) != 2 {
		t.Fatalf("ListReports() len = %d; want 2", len(list))
	}
	if list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Fatalf("ListReports() order = [%s %s]; want [%s %s]", list[0].ID, list[1].ID, ids[2], ids[1])
	}
	_, err := s.GetReport(context.Background(), ids[0])
	requireCode(t, err, CodeNotFound)
}

func TestGetReportRequiresID(t *testing.T) {
	s := NewService(Options{})
	_, err := s.GetReport(context.Background(), " ")
	requireCode(t, err, CodeValidation)
}

func TestReadScreenshot(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	meta, err := store.Save(snapshot.ScreenshotMeta{URL: "https://example.com", Scheme: "light"}, []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	s := NewService(Options{Screenshots: store})

	data, format, err := s.ReadScreenshot(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("ReadScreenshot() error = %v", err)
	}
	if string(data) != "png-bytes" || format != "png" {
		t.Fatalf("ReadScreenshot() = %q, %q", data, format)
	}

	_, _, err = s.ReadScreenshot(context.Background(), snapshot.NewID())
	requireCode(t, err, CodeNotFound)
	_, _, err = s.ReadScreenshot(context.Background(), "../meta")
	requireCode(t, err, CodeValidation)
	_, _, err = s.ReadScreenshot(context.Background(), "")
	requireCode(t, err, CodeValidation)

	_, _, err = NewService(Options{}).ReadScreenshot(context.Background(), meta.ID)
	requireCode(t, err, CodeNotFound)
}

func TestBrowserStatus(t *testing.T) {
	pages := []cdp.PageInfo{{TargetID: "T1", Owner: "transfercollect"}}
	s := NewService(Options{Browser: &fakeBrowser{pages: pages}})
	s.probe = func(_ context.Context, httpBase string) (cdp.Version, error) {
		if httpBase != "http://127.0.0.1:9222" {
			t.Fatalf("probe base = %q", httpBase)
		}
		return cdp.Version{Product: "HeadlessChrome/126.0"}, nil
	}

	st, err := s.BrowserStatus(context.Background())
	if err != nil {
		t.Fatalf("BrowserStatus() error = %v", err)
	}
	if st.Version.Product != "HeadlessChrome/126.0" || len(st.Pages) != 1 {
		t.Fatalf("BrowserStatus() = %+v", st)
	}

	s.probe = func(context.Context, string) (cdp.Version, error) { return cdp.Version{}, errors.New("refused") }
	_, err = s.BrowserStatus(context.Background())
	requireCode(t, err, CodeBrowserUnavailable)

	_, err = NewService(Options{}).BrowserStatus(context.Background())
	requireCode(t, err, CodeBrowserUnavailable)
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(newError(CodeNotFound, "missing", nil)); got != CodeNotFound {
		t.Fatalf("CodeOf() = %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Fatalf("CodeOf(plain) = %q", got)
	}
	err := newError(CodeCollectionFailed, "run", errUnavailable)
	if !errors.Is(err, errUnavailable) {
		t.Fatal("CodedError does not unwrap its cause")
	}
}
