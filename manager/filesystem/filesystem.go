// Package filesystem 维护宿主侧已接管 stream 的句柄表，按句柄或名称分发给 guest。
package filesystem

import (
	"errors"
	"sync"

	"github.com/OpenListTeam/fdstream/manager/fd"
)

// Manager 是线程安全的 stream 句柄表，句柄从 1 开始。
type Manager struct {
	mu      sync.RWMutex
	handles map[uint32]*fd.Stream
	names   map[string]uint32
	nextID  uint32
}

// NewManager 创建一个空表。
func NewManager() *Manager {
	return &Manager{
		handles: make(map[uint32]*fd.Stream),
		names:   make(map[string]uint32),
	}
}

// Add 登记 s 并返回句柄。同名的后来者在 Lookup 中覆盖先前的 stream。
func (m *Manager) Add(s *fd.Stream) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	handle := m.nextID
	m.handles[handle] = s
	m.names[s.Name()] = handle
	return handle
}

// Get 返回 handle 对应的 stream。
func (m *Manager) Get(handle uint32) (*fd.Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.handles[handle]
	return s, ok
}

// Lookup 返回 name 对应的 stream。
func (m *Manager) Lookup(name string) (*fd.Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, ok := m.names[name]
	if !ok {
		return nil, false
	}
	return m.handles[handle], true
}

// Remove 注销 handle 并关闭其 stream。未知句柄直接忽略。
func (m *Manager) Remove(handle uint32) error {
	m.mu.Lock()
	s, ok := m.handles[handle]
	if ok {
		delete(m.handles, handle)
		if m.names[s.Name()] == handle {
			delete(m.names, s.Name())
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

// Range 对每个已登记的 stream 调用 f，直到 f 返回 false。
func (m *Manager) Range(f func(handle uint32, s *fd.Stream) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for handle, s := range m.handles {
		if !f(handle, s) {
			break
		}
	}
}

// Close 关闭并注销所有 stream。
func (m *Manager) Close() error {
	m.mu.Lock()
	streams := m.handles
	m.handles = make(map[uint32]*fd.Stream)
	m.names = make(map[string]uint32)
	m.mu.Unlock()

	var errs []error
	for _, s := range streams {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
