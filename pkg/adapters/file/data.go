package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Directory layout read by DataAPI.
const (
	VersionsDir = "versions"
	ProgramsDir = "programs"
)

var extensions = []string{".json", ".yaml", ".yml"}

// DataAPI implements ports.DataAPI over a project directory:
//
//	<root>/versions/<versionID>.{json,yaml,yml}
//	<root>/programs/<programID>.{json,yaml,yml}
//
// Every call reads from disk; wrap it in memory.CachedDataAPI for serving.
type DataAPI struct {
	root   string
	logger *slog.Logger
}

// DataOption configures a DataAPI.
type DataOption func(*DataAPI)

// WithLogger sets the logger used by Watch.
func WithLogger(logger *slog.Logger) DataOption {
	return func(a *DataAPI) {
		a.logger = logger
	}
}

// NewDataAPI creates a data API reading from root.
func NewDataAPI(root string, opts ...DataOption) *DataAPI {
	a := &DataAPI{root: root, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *DataAPI) GetVersion(ctx context.Context, versionID string) (*domain.Version, error) {
	var v domain.Version
	if err := a.read(VersionsDir, versionID, &v); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, versionID)
		}
		return nil, err
	}
	if v.ID == "" {
		v.ID = versionID
	}
	return &v, nil
}

func (a *DataAPI) GetProgram(ctx context.Context, programID string) (*domain.Program, error) {
	var p domain.Program
	if err := a.read(ProgramsDir, programID, &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, programID)
		}
		return nil, err
	}
	if p.ID == "" {
		p.ID = programID
	}
	return &p, nil
}

// ListPrograms returns the ids of every program in the directory.
func (a *DataAPI) ListPrograms() ([]string, error) {
	return a.list(ProgramsDir)
}

// ListVersions returns the ids of every version in the directory.
func (a *DataAPI) ListVersions() ([]string, error) {
	return a.list(VersionsDir)
}

func (a *DataAPI) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var ids []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || !supported(ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ext))
	}
	return ids, nil
}

func (a *DataAPI) read(dir, id string, out any) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid id %q: %w", id, os.ErrNotExist)
	}
	for _, ext := range extensions {
		path := filepath.Join(a.root, dir, id+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := Decode(data, ext, out); err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return nil
	}
	return os.ErrNotExist
}

// Decode unmarshals JSON or YAML into out. YAML documents are converted to JSON first
// so both formats share the json field names of the domain types.
func Decode(data []byte, ext string, out any) error {
	if ext == ".json" {
		return json.Unmarshal(data, out)
	}
	raw, err := ToJSON(data, ext)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// ToJSON returns the JSON form of a .json, .yaml or .yml document.
func ToJSON(data []byte, ext string) ([]byte, error) {
	if ext == ".json" {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("yaml document is not representable as json: %w", err)
	}
	return raw, nil
}

// Document is one raw data file.
type Document struct {
	ID   string
	Path string
	Ext  string
	Data []byte
}

// ReadDocuments returns the raw files of dir (VersionsDir or ProgramsDir), sorted by id.
func (a *DataAPI) ReadDocuments(dir string) ([]Document, error) {
	ids, err := a.list(dir)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	var docs []Document
	for _, id := range ids {
		for _, ext := range extensions {
			path := filepath.Join(a.root, dir, id+ext)
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			docs = append(docs, Document{ID: id, Path: path, Ext: ext, Data: data})
		}
	}
	return docs, nil
}

func supported(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Watch signals on the returned channel whenever a version or program file changes.
// Bursts of events are coalesced. The channel is closed when ctx is done.
func (a *DataAPI) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, dir := range []string{VersionsDir, ProgramsDir} {
		path := filepath.Join(a.root, dir)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := w.Add(path); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !supported(filepath.Ext(ev.Name)) {
					continue
				}
				a.logger.Debug("data file changed", "path", ev.Name, "op", ev.Op.String())
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				a.logger.Warn("data watcher error", "err", err)
			}
		}
	}()
	return changes, nil
}
