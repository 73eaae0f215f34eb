// Package cache remembers verdicts for identical posts so reposts and
// reloads do not cost another model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

const keyPrefix = "feedsieve:verdict:"

// ErrMiss is returned by Get when nothing is stored under the key
var ErrMiss = errors.New("cache miss")

// Entry is a stored classification
type Entry struct {
	Category    types.Category `json:"category"`
	Reason      string         `json:"reason"`
	RawResponse string         `json:"raw_response"`
}

// Cache stores entries by content key
type Cache interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, e Entry) error
}

// Key derives the cache key for a request classified under prompt. The
// correlation id is left out since it differs for every sighting.
func Key(req types.ClassifyRequest, prompt string) string {
	h := sha256.New()
	for _, part := range []string{req.Author, req.Text, strings.Join(req.Images, "\n"), prompt} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache backend selected in cfg
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	switch cfg.Backend {
	case config.CacheMemory:
		return NewMemory(ttl), nil
	case config.CacheRedis:
		c := NewRedis(cfg.RedisAddr, ttl)
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, error) { return Entry{}, ErrMiss }
func (Nop) Set(context.Context, string, Entry) error   { return nil }
