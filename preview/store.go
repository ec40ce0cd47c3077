package preview

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/internal/metrics"
	"github.com/BaSui01/arpublish/types"
)

// Blob 一个临时托管的预览对象
type Blob struct {
	Handle      string
	Format      types.Format
	ContentType string
	Data        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// BlobStore 持有预览句柄，到期后由定时器释放
type BlobStore struct {
	mu      sync.Mutex
	blobs   map[string]*Blob
	timers  map[string]*time.Timer
	now     func() time.Time
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewBlobStore creates an empty store. collector may be nil.
func NewBlobStore(collector *metrics.Collector, logger *zap.Logger) *BlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{
		blobs:   make(map[string]*Blob),
		timers:  make(map[string]*time.Timer),
		now:     time.Now,
		metrics: collector,
		logger:  logger.With(zap.String("component", "preview_store")),
	}
}

// Put registers data and schedules its release after ttl. ttl <= 0 keeps the
// blob until Release is called.
func (s *BlobStore) Put(format types.Format, data []byte, ttl time.Duration) *Blob {
	now := s.now()
	b := &Blob{
		Handle:      uuid.NewString(),
		Format:      format,
		ContentType: format.ContentType(),
		Data:        data,
		CreatedAt:   now,
	}
	if ttl > 0 {
		b.ExpiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	s.blobs[b.Handle] = b
	if ttl > 0 {
		handle := b.Handle
		s.timers[handle] = time.AfterFunc(ttl, func() { s.Release(handle) })
	}
	n := len(s.blobs)
	s.mu.Unlock()

	s.report(n)
	s.logger.Debug("preview handle registered", zap.String("handle", b.Handle), zap.Int("bytes", len(data)))
	return b
}

// Get returns the blob for handle.
func (s *BlobStore) Get(handle string) (*Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[handle]
	return b, ok
}

// Release drops handle. It reports whether the handle was live.
func (s *BlobStore) Release(handle string) bool {
	s.mu.Lock()
	_, ok := s.blobs[handle]
	delete(s.blobs, handle)
	if t, found := s.timers[handle]; found {
		t.Stop()
		delete(s.timers, handle)
	}
	n := len(s.blobs)
	s.mu.Unlock()

	if ok {
		s.report(n)
		s.logger.Debug("preview handle released", zap.String("handle", handle))
	}
	return ok
}

// Len returns the number of live handles.
func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// Close releases every handle and stops pending timers.
func (s *BlobStore) Close() {
	s.mu.Lock()
	for h, t := range s.timers {
		t.Stop()
		delete(s.timers, h)
	}
	s.blobs = make(map[string]*Blob)
	s.mu.Unlock()
	s.report(0)
}

func (s *BlobStore) report(n int) {
	if s.metrics != nil {
		s.metrics.SetPreviewHandles(n)
	}
}
