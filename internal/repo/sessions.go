package repo

import (
	"sort"
	"sync"
	"time"

	"github.com/sir_venger/jsonl_collector/internal/models"
)

// SessionStore хранит прогресс открытых сессий только в оперативной памяти.
// Каждый экземпляр изолирован, поэтому тесты создают собственный store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[models.UploadKey]models.Session

	locksMu sync.Mutex
	locks   map[models.UploadKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionStore создаёт пустое хранилище сессий.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: map[models.UploadKey]models.Session{},
		locks:    map[models.UploadKey]*keyLock{},
	}
}

// Lock захватывает мьютекс конкретного ключа и возвращает функцию освобождения.
// Разные ключи не блокируют друг друга.
func (s *SessionStore) Lock(key models.UploadKey) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, key)
			}
			s.locksMu.Unlock()
		})
	}
}

// Get возвращает сессию по ключу.
func (s *SessionStore) Get(key models.UploadKey) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// Put записывает (или обновляет) сессию целиком.
func (s *SessionStore) Put(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Key] = sess
}

// Delete удаляет сессию; отсутствие ключа не ошибка.
func (s *SessionStore) Delete(key models.UploadKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Stale возвращает открытые сессии, которые не обновлялись с момента before.
func (s *SessionStore) Stale(before time.Time) []models.Session {
	s.mu.RLock()
	var out []models.Session
	for _, sess := range s.sessions {
		if sess.State == models.SessionOpen && sess.UpdatedAt.Before(before) {
			out = append(out, sess)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

// Has сообщает, есть ли сессия с таким ключом.
func (s *SessionStore) Has(key models.UploadKey) bool {
	_, ok := s.Get(key)
	return ok
}

// Len возвращает число отслеживаемых сессий.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
