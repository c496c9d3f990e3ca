package memory_service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/embedding"
	"github.com/lewisedginton/companion_chatbot/internal/storage_manager"
	"github.com/lewisedginton/companion_chatbot/internal/vectorindex"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// DefaultK is the number of memories retrieved when callers have no preference.
const DefaultK = 3

// Manager owns every user's memory state and its snapshot.
type Manager struct {
	fileProvider storage_manager.FileProvider
	embedder     embedding.Embedder
	log          logger.Logger
	recorder     Recorder
	dimension    int
	loadOnWrite  bool
	now          func() time.Time

	mu        sync.Mutex // guards users and userLocks
	users     stateCache
	userLocks map[string]*userLock
}

// userLock serialises one user's operations. refs counts holders and waiters.
type userLock struct {
	sync.Mutex
	refs int
}

// Config holds configuration for the memory manager.
type Config struct {
	FileProvider storage_manager.FileProvider
	Embedder     embedding.Embedder
	Logger       logger.Logger
	// Recorder is optional.
	Recorder Recorder
	// Dimension defaults to the embedder's dimension.
	Dimension int
	// MaxCachedUsers caps in-memory user states with an LRU; 0 keeps every user.
	MaxCachedUsers int
	// LoadOnWrite loads an existing snapshot before the first add for a user
	// instead of starting empty. Always on when MaxCachedUsers is set.
	LoadOnWrite bool
}

// New creates a memory manager with the given configuration.
func New(cfg Config) (*Manager, error) {
	if cfg.FileProvider == nil {
		panic("file provider cannot be nil")
	}
	if cfg.Embedder == nil {
		panic("embedder cannot be nil")
	}
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = cfg.Embedder.Dimensions()
	}
	if dim < 1 || dim > vectorindex.MaxDimension {
		return nil, fmt.Errorf("memory dimension must be between 1 and %d, got %d", vectorindex.MaxDimension, dim)
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	m := &Manager{
		fileProvider: cfg.FileProvider,
		embedder:     cfg.Embedder,
		log:          cfg.Logger,
		recorder:     recorder,
		dimension:    dim,
		loadOnWrite:  cfg.LoadOnWrite,
		now:          time.Now,
		userLocks:    make(map[string]*userLock),
	}

	if cfg.MaxCachedUsers > 0 {
		cache, err := newLRUCache(cfg.MaxCachedUsers, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create user cache: %w", err)
		}
		m.users = cache
		// an evicted user must not be recreated empty and overwrite its snapshot
		m.loadOnWrite = true
	} else {
		m.users = unboundedCache{}
	}

	return m, nil
}

// Dimension returns the embedding length stored in every index.
func (m *Manager) Dimension() int {
	return m.dimension
}

// AddMemory embeds text, appends it to the user's index and saves the snapshot.
// Embedding failures fall back to a zero vector. A failed save returns a
// *PersistenceError while the memory stays in the in-memory state.
func (m *Manager) AddMemory(ctx context.Context, userID, text string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	log := logger.GetLoggerFromContext(ctx, m.log).WithFields(logger.UserIDField(userID))

	defer m.lockUser(userID)()

	st, loadErr := m.stateLocked(ctx, userID, m.loadOnWrite)

	vec, err := m.embed(ctx, text)
	if err != nil {
		log.Warn("Embedding unavailable, storing memory with zero vector", logger.ErrorField(err))
		m.recorder.EmbeddingFallback()
		vec = make([]float32, m.dimension)
	}

	if err := st.index.Add(vec); err != nil {
		// embed guarantees the length, so this is a programming error
		return fmt.Errorf("failed to index memory: %w", err)
	}
	st.texts = append(st.texts, text)
	m.recorder.MemoryAdded()

	if err := m.saveLocked(ctx, userID, st); err != nil {
		log.Error("Failed to save memory snapshot", logger.ErrorField(err))
		return err
	}

	log.Debug("Added memory", logger.IntField("memories", len(st.texts)))
	if loadErr != nil {
		return loadErr
	}
	return nil
}

// GetRelevantMemories returns up to k stored texts nearest to query, nearest first.
// A user without memories yields an empty slice. Embedding or search failures are
// logged and also yield an empty slice.
func (m *Manager) GetRelevantMemories(ctx context.Context, userID, query string, k int) ([]string, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	log := logger.GetLoggerFromContext(ctx, m.log).WithFields(logger.UserIDField(userID))

	defer m.lockUser(userID)()

	st, loadErr := m.stateLocked(ctx, userID, true)
	if loadErr != nil {
		log.Warn("Continuing with empty memory after load failure", logger.ErrorField(loadErr))
	}

	if len(st.texts) == 0 || st.index.Count() == 0 {
		m.recorder.MemoriesRetrieved(0)
		return []string{}, nil
	}

	vec, err := m.embed(ctx, query)
	if err != nil {
		log.Warn("Embedding unavailable, skipping memory retrieval", logger.ErrorField(err))
		m.recorder.EmbeddingFallback()
		m.recorder.MemoriesRetrieved(0)
		return []string{}, nil
	}

	results, err := st.index.Search(vec, min(k, st.index.Count()))
	if err != nil {
		log.Warn("Memory search failed", logger.ErrorField(err))
		m.recorder.MemoriesRetrieved(0)
		return []string{}, nil
	}

	memories := make([]string, 0, len(results))
	for _, r := range results {
		if r.Position < 0 || r.Position >= len(st.texts) {
			continue
		}
		memories = append(memories, st.texts[r.Position])
	}

	m.recorder.MemoriesRetrieved(len(memories))
	log.Debug("Retrieved memories",
		logger.IntField("k", k),
		logger.IntField("results", len(memories)))
	return memories, nil
}

// Save writes the user's in-memory state to its snapshot. Users without
// in-memory state are left untouched.
func (m *Manager) Save(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	defer m.lockUser(userID)()

	m.mu.Lock()
	st, ok := m.users.Get(userID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.saveLocked(ctx, userID, st)
}

// Load replaces the user's in-memory state with the stored snapshot and reports
// whether one existed. A missing snapshot installs empty state. A corrupt snapshot
// also installs empty state and returns a *PersistenceError. When the read fails
// the empty state is kept from overwriting the snapshot until a read succeeds.
func (m *Manager) Load(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrInvalidUserID
	}

	defer m.lockUser(userID)()

	st, found, err := m.loadLocked(ctx, userID)
	m.install(userID, st)
	return found, err
}

// Count returns the number of stored memories, loading the snapshot if needed.
func (m *Manager) Count(ctx context.Context, userID string) (int, error) {
	memories, err := m.Memories(ctx, userID)
	return len(memories), err
}

// Memories returns the user's stored texts in insertion order.
func (m *Manager) Memories(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	defer m.lockUser(userID)()

	st, err := m.stateLocked(ctx, userID, true)
	out := slices.Clone(st.texts)
	if out == nil {
		out = []string{}
	}
	return out, err
}

// Evict drops the user's in-memory state. The next access reloads the snapshot.
func (m *Manager) Evict(userID string) {
	defer m.lockUser(userID)()

	m.mu.Lock()
	m.users.Remove(userID)
	n := m.users.Len()
	m.mu.Unlock()
	m.recorder.CachedUsers(n)
}

// CachedUsers returns how many user states are held in memory.
func (m *Manager) CachedUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users.Len()
}

// embed returns a vector of the manager's dimension or an ErrEmbeddingUnavailable error.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vec) != m.dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbeddingUnavailable, len(vec), m.dimension)
	}
	return vec, nil
}

// stateLocked returns the cached state, creating it when absent. With load set the
// snapshot is read first. A cached state whose snapshot could not be read is
// reloaded on every access until the read succeeds. The returned state is always
// usable; the error reports a failed load. Callers hold the user's lock.
func (m *Manager) stateLocked(ctx context.Context, userID string, load bool) (*userState, error) {
	m.mu.Lock()
	st, ok := m.users.Get(userID)
	m.mu.Unlock()
	if ok && !st.unreadable {
		return st, nil
	}
	if ok {
		return m.reloadLocked(ctx, userID, st)
	}

	var loadErr error
	if load {
		st, _, loadErr = m.loadLocked(ctx, userID)
	} else {
		st = m.emptyState()
	}
	m.install(userID, st)
	return st, loadErr
}

// reloadLocked retries the snapshot read for a state installed after a failed
// read. On success the memories added in the meantime are appended to the stored
// ones and written back.
func (m *Manager) reloadLocked(ctx context.Context, userID string, pending *userState) (*userState, error) {
	fresh, _, loadErr := m.loadLocked(ctx, userID)
	if fresh.unreadable {
		return pending, loadErr
	}

	for i, text := range pending.texts {
		vec, ok := pending.index.Vector(i)
		if !ok {
			vec = make([]float32, m.dimension)
		}
		if err := fresh.index.Add(vec); err != nil {
			return pending, fmt.Errorf("failed to merge pending memories: %w", err)
		}
		fresh.texts = append(fresh.texts, text)
	}
	m.install(userID, fresh)

	if len(pending.texts) > 0 {
		log := logger.GetLoggerFromContext(ctx, m.log).WithFields(logger.UserIDField(userID))
		log.Info("Snapshot readable again, saving pending memories",
			logger.IntField("pending", len(pending.texts)))
		if err := m.saveLocked(ctx, userID, fresh); err != nil {
			log.Error("Failed to save memory snapshot", logger.ErrorField(err))
			return fresh, err
		}
	}
	return fresh, loadErr
}

// loadLocked reads the user's snapshot. It never returns a nil state. When the
// read itself fails the state is marked unreadable so it cannot overwrite the
// stored snapshot; a corrupt snapshot yields plain empty state that replaces it.
func (m *Manager) loadLocked(ctx context.Context, userID string) (*userState, bool, error) {
	log := logger.GetLoggerFromContext(ctx, m.log).WithFields(logger.UserIDField(userID))

	data, err := m.fileProvider.Read(ctx, snapshotPath(userID))
	if errors.Is(err, storage_manager.ErrNotFound) {
		log.Debug("No memory snapshot, starting empty")
		return m.emptyState(), false, nil
	}
	if err != nil {
		m.recorder.SnapshotFailure("load")
		log.Error("Failed to read memory snapshot", logger.ErrorField(err))
		st := m.emptyState()
		st.unreadable = true
		return st, false, &PersistenceError{UserID: userID, Op: "load", Err: err}
	}

	st, err := decodeSnapshot(data, m.dimension)
	if err != nil {
		m.recorder.SnapshotFailure("load")
		log.Error("Discarding corrupt memory snapshot", logger.ErrorField(err))
		return m.emptyState(), false, &PersistenceError{UserID: userID, Op: "load", Err: err}
	}

	if len(st.texts) != st.index.Count() {
		log.Warn("Memory snapshot texts and vectors diverge",
			logger.IntField("texts", len(st.texts)),
			logger.IntField("vectors", st.index.Count()))
	}
	log.Debug("Loaded memory snapshot", logger.IntField("memories", len(st.texts)))
	return st, true, nil
}

// saveLocked writes st to the user's snapshot. Callers hold the user's lock.
func (m *Manager) saveLocked(ctx context.Context, userID string, st *userState) error {
	if st.unreadable {
		st.unsaved = true
		m.recorder.SnapshotFailure("save")
		return &PersistenceError{UserID: userID, Op: "save", Err: ErrSnapshotUnreadable}
	}

	data, err := encodeSnapshot(userID, st, m.now())
	if err == nil {
		err = m.fileProvider.Write(ctx, snapshotPath(userID), data)
	}
	if err != nil {
		st.unsaved = true
		m.recorder.SnapshotFailure("save")
		return &PersistenceError{UserID: userID, Op: "save", Err: err}
	}
	st.unsaved = false
	return nil
}

func (m *Manager) install(userID string, st *userState) {
	m.mu.Lock()
	m.users.Add(userID, st)
	n := m.users.Len()
	m.mu.Unlock()
	m.recorder.CachedUsers(n)
}

func (m *Manager) emptyState() *userState {
	// dimension is validated in New
	st, _ := newUserState(m.dimension)
	return st
}

// lockUser takes the user's lock and returns its release func. The entry is
// dropped once nobody holds or waits on it, so idle users cost nothing.
func (m *Manager) lockUser(userID string) func() {
	m.mu.Lock()
	lock, exists := m.userLocks[userID]
	if !exists {
		lock = &userLock{}
		m.userLocks[userID] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		m.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(m.userLocks, userID)
		}
		m.mu.Unlock()
	}
}
