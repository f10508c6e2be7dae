package publishers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistryEnabledFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.yaml")
	raw := `
publishers:
  - id: http1
    type: http
    enabled: false
    http:
      url: https://example.com
  - id: queue
    type: sqs
    sqs:
      queue_url: https://sqs.us-east-1.amazonaws.com/123/archived
      region: us-east-1
  - id: topic
    type: gcp_pubsub
    notify: FAILURES
    gcp_pubsub:
      project_id: p
      topic: archived-posts
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 2 || enabled[0].ID != "queue" || enabled[1].ID != "topic" {
		t.Fatalf("unexpected enabled publishers %#v", enabled)
	}
	if cfg, ok := reg.ByID("http1"); !ok || cfg.HTTP.Method != "POST" || cfg.Notify != NotifyAll {
		t.Fatalf("expected http1 with default method and notify mode, got %#v", cfg)
	}
	if enabled[1].Notify != NotifyFailures {
		t.Fatalf("expected normalized notify mode, got %q", enabled[1].Notify)
	}
}

func TestValidatePublisherConfigRejectsMissingBlocks(t *testing.T) {
	cases := []PublisherConfig{
		{ID: "h1", Type: TypeHTTP},
		{ID: "s1", Type: TypeSQS, SQS: &SQSPublisherConfig{QueueURL: "q"}},
		{ID: "n1", Type: TypeSNS, SNS: &SNSPublisherConfig{Region: "us-east-1"}},
		{ID: "g1", Type: TypeGCPPubSub, GCPPubSub: &GCPPubSubConfig{ProjectID: "p"}},
		{Type: TypeHTTP},
		{ID: "k1", Type: "kafka"},
		{ID: "h2", Type: TypeHTTP, Notify: "sometimes", HTTP: &HTTPPublisherConfig{URL: "https://example.com"}},
	}
	for _, cfg := range cases {
		if err := validatePublisherConfig(cfg); err == nil {
			t.Fatalf("expected validation error for %#v", cfg)
		}
	}
}
