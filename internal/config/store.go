package config

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dalmatheo/gamepadd/internal/drivererr"
)

// Store holds configurations loaded from an external source and serves
// priority-ordered lookup by (vendor, product). It is read-only
// after Load*.
type Store struct {
	mu      sync.RWMutex
	configs []*Configuration
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// LoadDir reads every *.json, *.json5 and *.jsonc file directly inside dir
// as a Configuration record. A single malformed file is skipped with its
// error recorded rather than aborting the whole directory scan: a bad
// file costs only that file. Returns NoConfigurations if nothing loaded.
func (s *Store) LoadDir(dir string) ([]*Configuration, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{drivererr.Wrap(drivererr.KindFileNotFound, err, "cannot read configuration directory "+dir, "check the directory exists and is readable")}
	}

	var loaded []*Configuration
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" && ext != ".json5" && ext != ".jsonc" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, drivererr.Wrap(drivererr.KindFileNotFound, err, "cannot read "+path, "check file permissions"))
			continue
		}
		cfg, err := decodeOne(data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, cfg)
	}

	if len(loaded) == 0 {
		errs = append(errs, drivererr.New(drivererr.KindNoConfigurations, "no valid configurations found in "+dir, "add at least one *.json configuration file"))
	}

	s.mu.Lock()
	s.configs = append(s.configs, loaded...)
	s.mu.Unlock()

	return loaded, errs
}

// LoadIndex reads a controller index document and loads each entry's
// referenced configuration file, relative to the index's own directory.
// Entry-level Enabled/Priority override whatever the referenced file set.
func (s *Store) LoadIndex(indexPath string) ([]*Configuration, []error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, []error{drivererr.Wrap(drivererr.KindFileNotFound, err, "cannot read controller index "+indexPath, "check the index path")}
	}
	idx, err := decodeIndex(data)
	if err != nil {
		return nil, []error{err}
	}

	baseDir := filepath.Dir(indexPath)
	var loaded []*Configuration
	var errs []error
	for _, entry := range idx.Controllers {
		path := entry.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, drivererr.Wrap(drivererr.KindFileNotFound, err, "cannot read "+path, "check the index entry's path"))
			continue
		}
		cfg, err := decodeOne(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfg.Enabled = entry.Enabled
		if entry.Priority != 0 {
			cfg.Priority = entry.Priority
		}
		loaded = append(loaded, cfg)
	}

	if len(loaded) == 0 {
		errs = append(errs, drivererr.New(drivererr.KindNoConfigurations, "no valid configurations referenced by "+indexPath, "add at least one enabled controller entry"))
	}

	s.mu.Lock()
	s.configs = append(s.configs, loaded...)
	s.mu.Unlock()

	return loaded, errs
}

// LoadAll is the entry point: reads every configuration this store
// knows how to find under dir (either loose files or, if controllerIndex.*
// is present, via the index) and returns the cumulative set.
func (s *Store) LoadAll(dir string) ([]*Configuration, []error) {
	for _, name := range []string{"controllerIndex.json", "controllerIndex.json5", "controllerIndex.jsonc"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return s.LoadIndex(p)
		}
	}
	return s.LoadDir(dir)
}

// Lookup returns the enabled configuration matching (vid, pid) with the
// highest Priority, or false if none match.
func (s *Store) Lookup(vid, pid uint16) (*Configuration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*Configuration
	for _, c := range s.configs {
		if !c.Enabled {
			continue
		}
		if c.DeviceID.VendorID == vid && c.DeviceID.ProductID == pid {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority > candidates[j].Priority })
	return candidates[0], true
}

// Best is an alias for Lookup under the name the session calls it by.
func (s *Store) Best(vid, pid uint16) (*Configuration, bool) {
	return s.Lookup(vid, pid)
}

// All returns every loaded configuration, enabled or not.
func (s *Store) All() []*Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Configuration, len(s.configs))
	copy(out, s.configs)
	return out
}
