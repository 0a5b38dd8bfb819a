package session

import "sync"

// Store keeps one State per conversation
type Store interface {
	// Get returns the conversation state, Idle if none was set
	Get(chatID int64) State
	Set(chatID int64, st State)
	Reset(chatID int64)
}

// MemoryStore is a process-local Store. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]State
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]State)}
}

func (m *MemoryStore) Get(chatID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.sessions[chatID]; ok {
		return st
	}
	return Idle{}
}

// Set replaces the conversation state. Setting Idle drops the session.
func (m *MemoryStore) Set(chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if IsIdle(st) {
		delete(m.sessions, chatID)
		return
	}
	m.sessions[chatID] = clone(st)
}

func (m *MemoryStore) Reset(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, chatID)
}

// Active returns the number of conversations outside Idle
func (m *MemoryStore) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// clone copies slice payloads so callers cannot mutate stored state
func clone(st State) State {
	switch s := st.(type) {
	case WaitBulkCodes:
		s.Players = append([]Player(nil), s.Players...)
		return s
	case WaitBulkConfirm:
		s.Entries = append([]BulkEntry(nil), s.Entries...)
		return s
	}
	return st
}

// Locker serializes event handling per conversation
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a Locker
func NewLocker() *Locker {
	return &Locker{locks: make(map[int64]*chatLock)}
}

// Lock blocks until the conversation is free and returns its unlock func
func (l *Locker) Lock(chatID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[chatID]
	if !ok {
		lock = &chatLock{}
		l.locks[chatID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, chatID)
		}
		l.mu.Unlock()
	}
}
