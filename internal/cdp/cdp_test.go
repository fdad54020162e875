package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/dgnsrekt/ecoaudit/internal/config"
)

// fakeBrowser serves /json/version and a debugger websocket that answers
// each command with reply(method).
func fakeBrowser(t *testing.T, reply func(id int64, method string) []string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/devtools/browser/abc"
		_ = json.NewEncoder(w).Encode(map[string]string{"Browser": "Chrome/126", "webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/devtools/browser/abc", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var msg struct {
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			for _, out := range reply(msg.ID, msg.Method) {
				if err := wsutil.WriteServerText(conn, []byte(out)); err != nil {
					return
				}
			}
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	srv := fakeBrowser(t, func(id int64, method string) []string {
		if method != "Browser.getVersion" {
			t.Errorf("method = %q", method)
		}
		return []string{
			`{"method":"Target.targetCreated","params":{}}`,
			`{"id":99,"result":{}}`,
			`{"id":1,"result":{"product":"HeadlessChrome/126.0.6478.126","protocolVersion":"1.3","userAgent":"Mozilla/5.0","jsVersion":"12.6"}}`,
		}
	})

	v, err := Probe(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if v.Product != "HeadlessChrome/126.0.6478.126" || v.ProtocolVersion != "1.3" || v.JSVersion != "12.6" {
		t.Fatalf("unexpected version: %+v", v)
	}
}

func TestProbeProtocolError(t *testing.T) {
	srv := fakeBrowser(t, func(id int64, _ string) []string {
		return []string{`{"id":1,"error":{"code":-32601,"message":"'Browser.getVersion' wasn't found"}}`}
	})

	_, err := Probe(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "wasn't found") {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestProbeVersionEndpointErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusServiceUnavailable)
			},
			want: "HTTP 503",
		},
		{
			name: "empty url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"Browser":"Chrome/126"}`))
			},
			want: "empty webSocketDebuggerUrl",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := Probe(context.Background(), srv.URL)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestProbeTimesOutOnSilentBrowser(t *testing.T) {
	srv := fakeBrowser(t, func(int64, string) []string { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := Probe(ctx, srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("probe ignored the context deadline")
	}
}

func TestPageRegistry(t *testing.T) {
	r := NewPageRegistry()
	r.Register("t1", "transfercollect")
	time.Sleep(time.Millisecond)
	r.Register("t2", "csscollect")
	r.SetURL("t1", "https://example.com/")
	r.SetURL("missing", "https://ignored.example/")

	pages := r.List()
	if len(pages) != 2 || pages[0].TargetID != "t1" || pages[1].Owner != "csscollect" {
		t.Fatalf("unexpected pages: %+v", pages)
	}
	if info, ok := r.Get("t1"); !ok || info.URL != "https://example.com/" {
		t.Fatalf("Get(t1) = %+v, %v", info, ok)
	}

	r.Remove("t1")
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	if _, ok := r.Get("t1"); ok {
		t.Fatal("t1 still registered")
	}
}

func TestNewPageRequiresConnection(t *testing.T) {
	b := NewBrowser("http://127.0.0.1:1")
	if b.Connected() {
		t.Fatal("fresh browser reports connected")
	}
	if _, err := b.NewPage(context.Background(), "transfercollect", config.DefaultConnection()); err != ErrNotConnected {
		t.Fatalf("NewPage err = %v, want ErrNotConnected", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSetupActions(t *testing.T) {
	conn := config.DefaultConnection()
	if got := len(setupActions(conn)); got != 5 {
		t.Fatalf("setup actions = %d, want 5", got)
	}
	conn.Device.UserAgent = ""
	if got := len(setupActions(conn)); got != 4 {
		t.Fatalf("setup actions without user agent = %d, want 4", got)
	}
}
