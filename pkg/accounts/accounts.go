package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samvad-hq/post-archiver/internal/domain"
	"gopkg.in/yaml.v3"
)

// Package accounts loads the static set of watched accounts.

type registryFile struct {
	Accounts []domain.Account `json:"accounts" yaml:"accounts"`
}

// Registry is the immutable set of watched accounts, in file order.
type Registry struct {
	accounts []domain.Account
	byID     map[string]domain.Account
}

// LoadRegistry loads watched accounts from a YAML or JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("accounts file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewRegistry(reg.Accounts)
}

// NewRegistry validates accounts and builds a Registry.
func NewRegistry(list []domain.Account) (*Registry, error) {
	if len(list) == 0 {
		return nil, errors.New("no watched accounts configured")
	}

	reg := &Registry{
		accounts: make([]domain.Account, 0, len(list)),
		byID:     make(map[string]domain.Account, len(list)),
	}
	handles := make(map[string]struct{}, len(list))

	for i, acc := range list {
		acc = sanitizeAccount(acc)
		if err := validateAccount(acc); err != nil {
			return nil, fmt.Errorf("accounts[%d]: %w", i, err)
		}
		if _, exists := reg.byID[acc.ID]; exists {
			return nil, fmt.Errorf("duplicate account id %q", acc.ID)
		}
		key := strings.ToLower(acc.Handle)
		if _, exists := handles[key]; exists {
			return nil, fmt.Errorf("duplicate account handle %q", acc.Handle)
		}
		handles[key] = struct{}{}
		reg.byID[acc.ID] = acc
		reg.accounts = append(reg.accounts, acc)
	}
	return reg, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var reg registryFile
		if err := d.fn(data, &reg); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("accounts file format not recognized (expected YAML or JSON)")
}

func sanitizeAccount(acc domain.Account) domain.Account {
	acc.ID = strings.TrimSpace(acc.ID)
	acc.Handle = strings.TrimPrefix(strings.TrimSpace(acc.Handle), "@")
	return acc
}

func validateAccount(acc domain.Account) error {
	if acc.ID == "" {
		return errors.New("id is required")
	}
	if strings.Trim(acc.ID, "0123456789") != "" {
		return fmt.Errorf("id %q must be a decimal account id", acc.ID)
	}
	if acc.Handle == "" {
		return fmt.Errorf("handle is required for account %q", acc.ID)
	}
	if strings.ContainsAny(acc.Handle, `/\ `) {
		return fmt.Errorf("handle %q for account %q contains invalid characters", acc.Handle, acc.ID)
	}
	return nil
}

// All returns the watched accounts in configuration order.
func (r *Registry) All() []domain.Account {
	if r == nil {
		return nil
	}
	out := make([]domain.Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// IDs returns the watched account ids in configuration order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.accounts))
	for _, acc := range r.accounts {
		ids = append(ids, acc.ID)
	}
	return ids
}

// ByID returns the watched account with the given id.
func (r *Registry) ByID(id string) (domain.Account, bool) {
	if r == nil {
		return domain.Account{}, false
	}
	acc, ok := r.byID[strings.TrimSpace(id)]
	return acc, ok
}

// Watches reports whether id belongs to a watched account.
func (r *Registry) Watches(id string) bool {
	_, ok := r.ByID(id)
	return ok
}

// Len returns the number of watched accounts.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.accounts)
}
