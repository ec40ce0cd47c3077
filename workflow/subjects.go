package workflow

import (
	"context"
	"sync"

	"github.com/BaSui01/arpublish/types"
)

// SubjectRegistry 保存当前已加载的主体，供服务端模式下由 API 更新
type SubjectRegistry struct {
	mu       sync.RWMutex
	subjects []types.Subject
}

// NewSubjectRegistry creates a registry preloaded with subjects.
func NewSubjectRegistry(subjects ...types.Subject) *SubjectRegistry {
	r := &SubjectRegistry{}
	r.Set(subjects)
	return r
}

// Set replaces the loaded subjects.
func (r *SubjectRegistry) Set(subjects []types.Subject) {
	cp := make([]types.Subject, len(subjects))
	copy(cp, subjects)
	r.mu.Lock()
	r.subjects = cp
	r.mu.Unlock()
}

// Clear unloads every subject.
func (r *SubjectRegistry) Clear() {
	r.Set(nil)
}

// Subjects returns a copy of the loaded subjects.
func (r *SubjectRegistry) Subjects(context.Context) ([]types.Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Subject, len(r.subjects))
	copy(out, r.subjects)
	return out, nil
}
