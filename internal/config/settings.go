package config

import (
	"sync"

	"github.com/ibeckermayer/feedsieve/internal/types"
)

// Settings is the runtime view of the user-facing switches. The pipeline
// reads it on every dispatch and verdict; Replace swaps in a reloaded file.
type Settings struct {
	mu       sync.RWMutex
	enabled  bool
	mode     types.DisplayMode
	criteria CriteriaConfig
}

func NewSettings(cfg *Config) *Settings {
	s := &Settings{}
	s.Replace(cfg)
	return s
}

// Replace takes a new snapshot of cfg's runtime settings
func (s *Settings) Replace(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = cfg.Enabled
	s.mode = cfg.DisplayMode
	s.criteria = cfg.Criteria.WithDefaults()
}

func (s *Settings) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled flips the master switch and reports whether it changed
func (s *Settings) SetEnabled(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.enabled != on
	s.enabled = on
	return changed
}

func (s *Settings) DisplayMode() types.DisplayMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Settings) Criteria() CriteriaConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.criteria
}
