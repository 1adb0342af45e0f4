package logstream

import (
	"sync"

	"github.com/mdforge/mdforge/internal/obslog"
)

// Manager owns one Stream per live execution id, so the Execution Engine and
// the query API can both reach the same Stream without passing it by hand
// through every call site.
type Manager struct {
	mu      sync.Mutex
	streams map[int64]*Stream
	log     *obslog.Logger
}

// NewManager constructs an empty Manager.
func NewManager(log *obslog.Logger) *Manager {
	return &Manager{streams: make(map[int64]*Stream), log: log.With("component", "logstream-manager")}
}

// OpenFor opens (or returns the already-open) Stream for an execution id.
// startFromZero should be true when called before the subprocess is spawned,
// so no output written between spawn and the first subscriber is missed.
func (m *Manager) OpenFor(executionID int64, path string, startFromZero bool) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[executionID]; ok {
		return s, nil
	}
	s, err := Open(path, startFromZero, m.log)
	if err != nil {
		return nil, err
	}
	m.streams[executionID] = s
	return s, nil
}

// Get returns the Stream for an execution id, if one is open.
func (m *Manager) Get(executionID int64) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[executionID]
	return s, ok
}

// CloseFor closes and forgets the Stream for an execution id. Call once the
// execution reaches a terminal status and its log is fully drained.
func (m *Manager) CloseFor(executionID int64) {
	m.mu.Lock()
	s, ok := m.streams[executionID]
	delete(m.streams, executionID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}
