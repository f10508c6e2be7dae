package accounts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samvad-hq/post-archiver/internal/domain"
)

func TestLoadRegistryYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "accounts.yaml")
	content := `
accounts:
  - id: "25073877"
    handle: realDonaldTrump
  - id: "822215679726100480"
    handle: "@POTUS"
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}

	reg, err := LoadRegistry(file)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 accounts, got %d", reg.Len())
	}
	acc, ok := reg.ByID("822215679726100480")
	if !ok || acc.Handle != "POTUS" {
		t.Fatalf("expected POTUS with @ trimmed, got %+v ok=%v", acc, ok)
	}
	ids := reg.IDs()
	if ids[0] != "25073877" || ids[1] != "822215679726100480" {
		t.Fatalf("expected file order, got %#v", ids)
	}
	if reg.Watches("1") {
		t.Fatalf("unexpected watched id")
	}
}

func TestLoadRegistryJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "accounts.json")
	content := `{"accounts":[{"id":"814046047546679296","handle":"false_trump"}]}`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}

	reg, err := LoadRegistry(file)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if !reg.Watches("814046047546679296") {
		t.Fatalf("expected account to be watched")
	}
}

func TestNewRegistryRejectsInvalidEntries(t *testing.T) {
	cases := map[string][]domain.Account{
		"empty":            nil,
		"missing id":       {{Handle: "a"}},
		"non numeric id":   {{ID: "abc", Handle: "a"}},
		"missing handle":   {{ID: "1"}},
		"path handle":      {{ID: "1", Handle: "../a"}},
		"duplicate id":     {{ID: "1", Handle: "a"}, {ID: "1", Handle: "b"}},
		"duplicate handle": {{ID: "1", Handle: "a"}, {ID: "2", Handle: "A"}},
	}
	for name, list := range cases {
		if _, err := NewRegistry(list); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
