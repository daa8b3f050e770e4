package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-genbot-gateway/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
)

type Name string

const (
	TextModels     Name = "text_models"
	FluxModels     Name = "flux_models"
	LeonardoModels Name = "leonardo_models"
	Voices         Name = "voices"
)

type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source loads one catalog from its upstream.
type Source func(ctx context.Context) ([]Entry, error)

// ErrorCounter receives refresh failures.
type ErrorCounter interface {
	CountError(kind string)
}

type snapshot struct {
	entries   []Entry
	updatedAt time.Time
}

// Service owns every model and voice catalog. Readers get the last good
// snapshot; a failed refresh never replaces it.
type Service struct {
	mu      sync.RWMutex
	sources map[Name]Source
	order   []Name
	store   *cache.Cache
	errors  ErrorCounter
	logger  logger.ILogger
}

func NewService(log logger.ILogger, errs ErrorCounter) *Service {
	return &Service{
		sources: make(map[Name]Source),
		store:   cache.New(cache.NoExpiration, 0),
		errors:  errs,
		logger:  log,
	}
}

// Register adds a catalog. Static entries may be seeded so readers have
// something before the first refresh.
func (s *Service) Register(name Name, source Source, seed ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[name]; !ok {
		s.order = append(s.order, name)
	}
	s.sources[name] = source
	if len(seed) > 0 {
		if _, ok := s.store.Get(string(name)); !ok {
			s.store.Set(string(name), snapshot{entries: normalize(seed)}, cache.NoExpiration)
		}
	}
}

func (s *Service) Names() []Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Name(nil), s.order...)
}

// Refresh reloads the named catalogs, or all of them when none is given.
func (s *Service) Refresh(ctx context.Context, names ...Name) error {
	if len(names) == 0 {
		names = s.Names()
	}
	var errs []error
	for _, name := range names {
		if err := s.refreshOne(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refreshOne(ctx context.Context, name Name) error {
	s.mu.RLock()
	source, ok := s.sources[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown catalog %s", name)
	}
	if source == nil {
		return nil
	}

	entries, err := source(ctx)
	if err == nil && len(entries) == 0 {
		err = fmt.Errorf("catalog %s came back empty", name)
	}
	if err != nil {
		if s.errors != nil {
			s.errors.CountError("catalog_refresh")
		}
		s.logger.Warn("CATALOG", "Refresh failed, keeping previous catalog", map[string]interface{}{
			"catalog": string(name),
			"kept":    len(s.Snapshot(name)),
			"error":   err.Error(),
		})
		return fmt.Errorf("refresh %s: %w", name, err)
	}

	s.store.Set(string(name), snapshot{entries: normalize(entries), updatedAt: time.Now()}, cache.NoExpiration)
	s.logger.Info("CATALOG", "Catalog refreshed", map[string]interface{}{
		"catalog": string(name),
		"entries": len(entries),
	})
	return nil
}

func normalize(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		if strings.TrimSpace(e.Name) == "" {
			e.Name = e.ID
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

func (s *Service) load(name Name) snapshot {
	if v, ok := s.store.Get(string(name)); ok {
		return v.(snapshot)
	}
	return snapshot{}
}

// Snapshot returns a copy of the current entries.
func (s *Service) Snapshot(name Name) []Entry {
	return append([]Entry(nil), s.load(name).entries...)
}

func (s *Service) UpdatedAt(name Name) time.Time {
	return s.load(name).updatedAt
}

// Lookup finds an entry by id, or by case-insensitive name.
func (s *Service) Lookup(name Name, key string) (Entry, bool) {
	key = strings.TrimSpace(key)
	entries := s.load(name).entries
	for _, e := range entries {
		if e.ID == key {
			return e, true
		}
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name, key) {
			return e, true
		}
	}
	return Entry{}, false
}

func (s *Service) First(name Name) (Entry, bool) {
	entries := s.load(name).entries
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}
