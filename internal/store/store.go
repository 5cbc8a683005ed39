package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"

	"github.com/ytget/sharedl/internal/model"
)

// Snapshot keys
const (
	KeyList       = "list"
	KeyFinishList = "finishList"
	KeyDir        = "dir"
)

// KV is a durable string key-value store
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Snapshot is the persisted state of the download manager
type Snapshot struct {
	List       []*model.Task
	FinishList []*model.Task
	Dir        string
}

// LoadSnapshot reads the snapshot from kv. Missing keys yield empty values.
func LoadSnapshot(kv KV) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := getJSON(kv, KeyList, &snap.List); err != nil {
		return nil, err
	}
	if err := getJSON(kv, KeyFinishList, &snap.FinishList); err != nil {
		return nil, err
	}
	dir, err := kv.Get(KeyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KeyDir, err)
	}
	snap.Dir = dir
	return snap, nil
}

// SaveSnapshot writes every key of snap to kv
func SaveSnapshot(kv KV, snap *Snapshot) error {
	if err := setJSON(kv, KeyList, snap.List); err != nil {
		return err
	}
	if err := setJSON(kv, KeyFinishList, snap.FinishList); err != nil {
		return err
	}
	if err := kv.Set(KeyDir, snap.Dir); err != nil {
		return fmt.Errorf("failed to write %s: %w", KeyDir, err)
	}
	return nil
}

func getJSON(kv KV, key string, out *[]*model.Task) error {
	raw, err := kv.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if raw == "" {
		*out = nil
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func setJSON(kv KV, key string, tasks []*model.Task) error {
	if tasks == nil {
		tasks = []*model.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := kv.Set(key, string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Preferences stores values in fyne preferences under a key prefix
type Preferences struct {
	prefs  fyne.Preferences
	prefix string
}

// NewPreferences creates a KV over prefs. prefix namespaces the keys.
func NewPreferences(prefs fyne.Preferences, prefix string) *Preferences {
	return &Preferences{prefs: prefs, prefix: prefix}
}

// Get returns the stored value or ""
func (p *Preferences) Get(key string) (string, error) {
	return p.prefs.String(p.prefix + key), nil
}

// Set stores value
func (p *Preferences) Set(key, value string) error {
	p.prefs.SetString(p.prefix+key, value)
	return nil
}

// Memory is an in-process KV, useful when nothing has to survive a restart
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory KV
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get returns the stored value or ""
func (m *Memory) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

// Set stores value
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
