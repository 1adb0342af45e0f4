// Package logstream tails an execution's log file and fans its appended
// bytes out to any number of live subscribers, replaying history to new
// subscribers on join. It generalizes a broadcaster built for an in-memory
// slice of progress events into one that polls deltas off a growing file
// on disk instead.
package logstream

import (
	"os"
	"sync"
	"time"

	"github.com/mdforge/mdforge/internal/obslog"
)

// pollInterval is how often the tailer checks the log file for new bytes.
// Real filesystems don't offer push notification for plain file growth
// without pulling in an extra dependency just for this.
const pollInterval = 200 * time.Millisecond

// Stream tails one log file and fans appended bytes out to subscribers.
// One Stream per in-flight (or recently finished) execution. Thread-safe.
type Stream struct {
	mu      sync.Mutex
	path    string
	history []byte
	clients map[uint64]chan []byte
	nextID  uint64
	closed  bool
	doneCh  chan struct{}

	stopPoll chan struct{}
	log      *obslog.Logger
}

// Open begins tailing path from its current end-of-file (or its start, if
// startFromZero is true — used when the caller opens the stream before the
// subprocess exists, so there is no history to skip). The returned Stream
// polls until Close is called.
func Open(path string, startFromZero bool, log *obslog.Logger) (*Stream, error) {
	s := &Stream{
		path:     path,
		clients:  make(map[uint64]chan []byte),
		doneCh:   make(chan struct{}),
		stopPoll: make(chan struct{}),
		log:      log.With("component", "logstream", "path", path),
	}

	if !startFromZero {
		if b, err := os.ReadFile(path); err == nil {
			s.history = b
		}
	}

	go s.pollLoop()
	return s, nil
}

// GetInitialContent returns everything read so far, for a caller that wants
// the full backlog without subscribing to live deltas (e.g. a one-shot
// "show me the log" read).
func (s *Stream) GetInitialContent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.history))
	copy(out, s.history)
	return out
}

// Subscribe returns a channel of raw appended-byte deltas (replaying
// history first), a done channel closed only when the stream itself is
// closed, and an unsubscribe function. Mirrors Broadcaster.Subscribe.
func (s *Stream) Subscribe() (<-chan []byte, <-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []byte, 256)
	id := s.nextID
	s.nextID++

	if len(s.history) > 0 {
		// Replay as a single delta; the subscriber only cares that the
		// concatenation of everything it receives equals the file's content.
		ch <- append([]byte(nil), s.history...)
	}

	if s.closed {
		close(ch)
		return ch, s.doneCh, func() {}
	}

	s.clients[id] = ch
	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.clients[id]; ok {
			delete(s.clients, id)
			close(ch)
		}
	}
	return ch, s.doneCh, unsub
}

// Close stops tailing and closes every subscriber channel. Call when the
// owning execution has reached a terminal status and its final bytes have
// been delivered.
func (s *Stream) Close() {
	close(s.stopPoll)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.doneCh)
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
}

func (s *Stream) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	s.mu.Lock()
	offset := int64(len(s.history))
	s.mu.Unlock()
	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			newOffset, delta, truncated := s.readSince(offset)
			if truncated {
				s.log.Warn("log file truncated or rotated, resetting tail offset")
				s.resetHistory()
				s.appendAndBroadcast([]byte("\n[log rotated]\n"))
				offset = 0
				continue
			}
			if len(delta) > 0 {
				s.appendAndBroadcast(delta)
				offset = newOffset
			}
		}
	}
}

func (s *Stream) currentOffset() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// readSince reads any bytes appended after offset. truncated is true if the
// file shrank below offset (rotation or truncation), in which case the
// caller should restart from zero.
func (s *Stream) readSince(offset int64) (newOffset int64, delta []byte, truncated bool) {
	f, err := os.Open(s.path)
	if err != nil {
		return offset, nil, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return offset, nil, false
	}
	if info.Size() < offset {
		return 0, nil, true
	}
	if info.Size() == offset {
		return offset, nil, false
	}

	if _, err := f.Seek(offset, 0); err != nil {
		return offset, nil, false
	}
	buf := make([]byte, info.Size()-offset)
	n, _ := f.Read(buf)
	return offset + int64(n), buf[:n], false
}

func (s *Stream) resetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Stream) appendAndBroadcast(delta []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.history = append(s.history, delta...)
	for id, ch := range s.clients {
		select {
		case ch <- delta:
		default:
			close(ch)
			delete(s.clients, id)
		}
	}
}
