package browser

import (
	"net"
	"strings"
	"testing"
)

func TestArgsHeadless(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9333, Headless: true, ProfileDir: "/tmp/p"})
	args := strings.Join(l.Args(), " ")

	for _, want := range []string{"--remote-debugging-port=9333", "--user-data-dir=/tmp/p", "--headless=new", "--window-size=1920,1080"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
	if got := l.Args()[len(l.Args())-1]; got != "about:blank" {
		t.Fatalf("last arg = %q; want about:blank", got)
	}
}

func TestArgsHeaded(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9222, WindowSize: "1280,800"})
	args := strings.Join(l.Args(), " ")
	if strings.Contains(args, "--headless") {
		t.Fatalf("headed launch has headless flag: %q", args)
	}
	if !strings.Contains(args, "--window-size=1280,800") {
		t.Fatalf("args %q missing window size", args)
	}
}

func TestDetectBrowserOverride(t *testing.T) {
	if _, err := detectBrowser("/nonexistent/chromium"); err == nil {
		t.Fatal("expected error for missing override")
	}
}

func TestIsPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if !isPortInUse("127.0.0.1", port) {
		t.Fatalf("port %d reported free", port)
	}
}

func TestStopWithoutProcess(t *testing.T) {
	l := NewLauncher(Config{})
	l.Stop()
	if l.Running() {
		t.Fatal("Running() = true; want false")
	}
}
