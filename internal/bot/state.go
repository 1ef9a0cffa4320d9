package bot

import (
	"context"
	"sync"
	"time"

	"github.com/suPer8Hu/remote-control/internal/auth"
	"github.com/suPer8Hu/remote-control/internal/conversation"
)

// ChatState is everything remembered about a chat between messages. Auth is only a
// cache hint; the gate rechecks the session table on every message.
type ChatState struct {
	Auth auth.Flags        `json:"auth"`
	Run  *conversation.Run `json:"run,omitempty"`
}

func (s ChatState) Clone() ChatState {
	return ChatState{Auth: s.Auth, Run: s.Run.Clone()}
}

// StateStore keeps ChatState per chat. Load returns the zero state for unknown chats.
type StateStore interface {
	Load(ctx context.Context, chatID int64) (ChatState, error)
	Save(ctx context.Context, chatID int64, st ChatState) error
}

type memoryEntry struct {
	state   ChatState
	expires time.Time
}

// MemoryStateStore is a process-local StateStore. Entries idle longer than ttl are dropped.
type MemoryStateStore struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[int64]memoryEntry
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{ttl: ttl, now: time.Now, m: make(map[int64]memoryEntry)}
}

func (s *MemoryStateStore) Load(_ context.Context, chatID int64) (ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[chatID]
	if !ok {
		return ChatState{}, nil
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.m, chatID)
		return ChatState{}, nil
	}
	return e.state.Clone(), nil
}

func (s *MemoryStateStore) Save(_ context.Context, chatID int64, st ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = memoryEntry{state: st.Clone(), expires: s.now().Add(s.ttl)}
	return nil
}

// chatLocks hands out one mutex per chat id and forgets it once nobody holds it.
type chatLocks struct {
	mu sync.Mutex
	m  map[int64]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func (l *chatLocks) lock(chatID int64) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[int64]*chatLock)
	}
	cl, ok := l.m[chatID]
	if !ok {
		cl = &chatLock{}
		l.m[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.m, chatID)
		}
		l.mu.Unlock()
	}
}
