package models

import "time"

// SessionState — состояние сессии сборки.
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionCompleted
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Session хранит прогресс сборки одной записи.
type Session struct {
	Key       UploadKey
	Prefix    RecordPrefix
	LastPage  int
	State     SessionState
	OpenedAt  time.Time
	UpdatedAt time.Time
}

// NextPage возвращает номер страницы, которую сессия ожидает следующей.
func (s Session) NextPage() int {
	return s.LastPage + 1
}
