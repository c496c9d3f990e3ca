package memory_service

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// stateCache holds in-memory user states. Access is serialised by Manager.mu.
type stateCache interface {
	Get(userID string) (*userState, bool)
	Add(userID string, st *userState)
	Remove(userID string)
	Len() int
}

type unboundedCache map[string]*userState

func (c unboundedCache) Get(userID string) (*userState, bool) {
	st, ok := c[userID]
	return st, ok
}

func (c unboundedCache) Add(userID string, st *userState) { c[userID] = st }
func (c unboundedCache) Remove(userID string)             { delete(c, userID) }
func (c unboundedCache) Len() int                         { return len(c) }

type lruCache struct {
	cache *lru.Cache[string, *userState]
}

func newLRUCache(size int, log logger.Logger) (*lruCache, error) {
	cache, err := lru.NewWithEvict(size, func(userID string, st *userState) {
		if st.unsaved {
			log.Warn("Evicted memory state with unsaved changes",
				logger.UserIDField(userID),
				logger.IntField("memories", len(st.texts)))
			return
		}
		log.Debug("Evicted memory state", logger.UserIDField(userID))
	})
	if err != nil {
		return nil, err
	}
	return &lruCache{cache: cache}, nil
}

func (c *lruCache) Get(userID string) (*userState, bool) { return c.cache.Get(userID) }
func (c *lruCache) Add(userID string, st *userState)     { c.cache.Add(userID, st) }
func (c *lruCache) Remove(userID string)                 { c.cache.Remove(userID) }
func (c *lruCache) Len() int                             { return c.cache.Len() }
