package memory_service

// Recorder receives memory subsystem events for metrics.
type Recorder interface {
	MemoryAdded()
	MemoriesRetrieved(results int)
	EmbeddingFallback()
	SnapshotFailure(op string)
	CachedUsers(n int)
}

type nopRecorder struct{}

func (nopRecorder) MemoryAdded()           {}
func (nopRecorder) MemoriesRetrieved(int)  {}
func (nopRecorder) EmbeddingFallback()     {}
func (nopRecorder) SnapshotFailure(string) {}
func (nopRecorder) CachedUsers(int)        {}
