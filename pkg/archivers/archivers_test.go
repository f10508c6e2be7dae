package archivers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestLoadConfigsAppliesTypeDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archivers.yaml")
	raw := `
archivers:
  - id: wayback
    type: wayback
  - id: today
    type: archive_today
    enabled: false
  - id: mirror
    prefix: https://mirror.example/save/
    timeout_seconds: 5
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfgs, err := LoadConfigs(path)
	if err != nil {
		t.Fatalf("LoadConfigs: %v", err)
	}
	if len(cfgs) != 3 {
		t.Fatalf("expected 3 configs, got %d", len(cfgs))
	}
	if cfgs[0].Prefix != defaultWaybackPrefix {
		t.Fatalf("expected wayback default prefix, got %q", cfgs[0].Prefix)
	}
	if cfgs[2].Type != TypePrefix || cfgs[2].TimeoutSeconds != 5 {
		t.Fatalf("unexpected mirror config %+v", cfgs[2])
	}

	enabled := Enabled(cfgs)
	if len(enabled) != 2 || enabled[0].ID != "wayback" || enabled[1].ID != "mirror" {
		t.Fatalf("unexpected enabled set %+v", enabled)
	}
}

func TestLoadConfigsRejectsDuplicatesAndBadPrefix(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"dup.yaml": `
archivers:
  - id: a
    type: wayback
  - id: a
    type: wayback
`,
		"prefix.yaml": `
archivers:
  - id: a
    prefix: ftp://nope/
`,
	}
	for name, raw := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
		if _, err := LoadConfigs(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestPrefixServiceDrainsBody(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/save/https://twitter.com/POTUS/status/1") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(strings.Repeat("snapshot", 1000)))
	}))
	defer srv.Close()

	svc, err := DefaultRegistry().ServiceFor(sanitizeServiceConfig(ServiceConfig{
		ID:     "local",
		Prefix: srv.URL + "/save/",
	}))
	if err != nil {
		t.Fatalf("ServiceFor: %v", err)
	}

	sub, err := svc.SubmitAndAwaitCompletion(context.Background(), "https://twitter.com/POTUS/status/1")
	if err != nil {
		t.Fatalf("SubmitAndAwaitCompletion: %v", err)
	}
	if sub.Bytes != int64(len("snapshot")*1000) || sub.StatusCode != http.StatusOK {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", hits.Load())
	}
}

func TestPrefixServiceReportsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, _ := newPrefixService(sanitizeServiceConfig(ServiceConfig{ID: "local", Prefix: srv.URL + "/"}))
	_, err := svc.SubmitAndAwaitCompletion(context.Background(), "http://twitter.com/a/status/1")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !statusErr.Temporary() {
		t.Fatalf("503 should be temporary")
	}
}

func TestArchiveTodayTargetEscapesURL(t *testing.T) {
	svc := newPrefixServiceWithClient(sanitizeServiceConfig(ServiceConfig{ID: "today", Type: TypeArchiveToday}), nil)
	got := svc.Target("https://twitter.com/POTUS/status/1")
	want := defaultArchiveTodayPrefix + "https%3A%2F%2Ftwitter.com%2FPOTUS%2Fstatus%2F1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBuildAllWithDefaultConfigs(t *testing.T) {
	services, err := BuildAll(DefaultRegistry(), DefaultConfigs())
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(services) != 1 || services[0].Type() != TypeWayback {
		t.Fatalf("unexpected services %+v", services)
	}
}
