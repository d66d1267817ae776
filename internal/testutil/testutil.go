package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/repository"
	"github.com/scottschroeder/storyestimate/internal/repository/memory"
	"github.com/scottschroeder/storyestimate/internal/repository/redis"
)

// NewTestRepository creates a new in-memory SQLite repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

// NewMemoryStore creates an empty map-backed store.
func NewMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.New(logger.NewNop())
}

// NewRedisStore creates a store on a fresh in-process Redis server.
// The server is returned so tests can inspect or corrupt keys directly.
func NewRedisStore(t *testing.T, opts redis.Options) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return redis.New(client, opts, logger.NewNop()), server
}

// Backends lists a constructor for every StoryData backend, keyed by name.
func Backends() map[string]func(t *testing.T) repository.StoryData {
	return map[string]func(t *testing.T) repository.StoryData{
		"memory": func(t *testing.T) repository.StoryData { return NewMemoryStore(t) },
		"sqlite": func(t *testing.T) repository.StoryData { return NewTestRepository(t) },
		"redis": func(t *testing.T) repository.StoryData {
			store, _ := NewRedisStore(t, redis.Options{})
			return store
		},
	}
}
