// Package store keeps backup artifacts and their history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// DefaultHistory is the number of records kept per device.
const DefaultHistory = 20

// ErrNotFound is returned when a device has no stored backup.
var ErrNotFound = fmt.Errorf("backup %w", util.ErrNotFound)

// Record is one stored backup.
type Record struct {
	Device   string    `json:"device"`
	Platform string    `json:"platform,omitempty"`
	Taken    time.Time `json:"taken"`
	// Config is the artifact text as written to the backup file.
	Config  string   `json:"config"`
	Skipped []string `json:"skipped,omitempty"`
}

// Store persists backup records.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Latest(ctx context.Context, device string) (*Record, error)
	// History returns up to n records, newest first.
	History(ctx context.Context, device string, n int) ([]*Record, error)
	Devices(ctx context.Context) ([]string, error)
	Close() error
}

const fileTimeFormat = "20060102T150405.000000000Z"

// FileStore keeps one JSON file per record under <dir>/<device>/.
type FileStore struct {
	dir     string
	history int
}

// NewFileStore returns a FileStore rooted at dir keeping history records
// per device (DefaultHistory when zero).
func NewFileStore(dir string, history int) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory: %w", util.ErrInvalidConfig)
	}
	if history <= 0 {
		history = DefaultHistory
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{dir: dir, history: history}, nil
}

func (s *FileStore) deviceDir(device string) (string, error) {
	if device == "" || strings.ContainsAny(device, `/\`) || device == "." || device == ".." {
		return "", fmt.Errorf("invalid device name %q: %w", device, util.ErrInvalidConfig)
	}
	return filepath.Join(s.dir, device), nil
}

// Put writes rec and prunes records beyond the history limit.
func (s *FileStore) Put(ctx context.Context, rec *Record) error {
	dir, err := s.deviceDir(rec.Device)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if rec.Taken.IsZero() {
		rec.Taken = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	name := filepath.Join(dir, rec.Taken.UTC().Format(fileTimeFormat)+".json")
	if err := os.WriteFile(name, data, 0644); err != nil {
		return err
	}

	names, err := s.files(dir)
	if err != nil {
		return err
	}
	for _, old := range names[min(len(names), s.history):] {
		os.Remove(filepath.Join(dir, old))
	}
	return nil
}

// files lists record file names newest first.
func (s *FileStore) files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Latest returns the newest record of device.
func (s *FileStore) Latest(ctx context.Context, device string) (*Record, error) {
	recs, err := s.History(ctx, device, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", device, ErrNotFound)
	}
	return recs[0], nil
}

// History implements Store.
func (s *FileStore) History(ctx context.Context, device string, n int) ([]*Record, error) {
	dir, err := s.deviceDir(device)
	if err != nil {
		return nil, err
	}
	names, err := s.files(dir)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(names) {
		names = names[:n]
	}
	out := make([]*Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			util.WithDevice(device).Warnf("store: skipping unreadable record %s: %v", name, err)
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Devices returns the devices with at least one record, sorted.
func (s *FileStore) Devices(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if names, _ := s.files(filepath.Join(s.dir, e.Name())); len(names) > 0 {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
