package models

import (
	"fmt"
	"strings"
)

// UploadKey идентифицирует одну сессию загрузки: {roomid}-{src}-{timestamp}-{rand}.
type UploadKey string

// RecordPrefix — имя итогового артефакта без nonce: {roomid}-{src}-{timestamp}.
type RecordPrefix string

// ChunkRequest — одна страница загружаемой записи.
type ChunkRequest struct {
	RoomID    string
	Src       string
	Timestamp string
	Rand      string

	Page    int
	Size    int
	Length  int
	Payload string
}

// ChunkResult возвращается после принятой страницы.
type ChunkResult struct {
	Page int
	Done bool
}

// Validate проверяет обязательные поля и то, что ключевые поля безопасны как часть имени файла.
func (r ChunkRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"roomid", r.RoomID},
		{"src", r.Src},
		{"timestamp", r.Timestamp},
		{"rand", r.Rand},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: field %q is empty", ErrMalformed, f.name)
		}
		if strings.ContainsAny(f.value, "/\\\x00") || strings.Contains(f.value, "..") {
			return fmt.Errorf("%w: field %q contains forbidden characters", ErrMalformed, f.name)
		}
	}

	if r.Page < 0 {
		return fmt.Errorf("%w: page must be >= 0, got %d", ErrMalformed, r.Page)
	}
	if r.Size <= 0 {
		return fmt.Errorf("%w: size must be > 0, got %d", ErrMalformed, r.Size)
	}
	if r.Length < 0 {
		return fmt.Errorf("%w: length must be >= 0, got %d", ErrMalformed, r.Length)
	}

	return nil
}

// Prefix возвращает имя итогового артефакта.
func (r ChunkRequest) Prefix() RecordPrefix {
	return RecordPrefix(r.RoomID + "-" + r.Src + "-" + r.Timestamp)
}

// Key возвращает ключ сессии.
func (r ChunkRequest) Key() UploadKey {
	return UploadKey(string(r.Prefix()) + "-" + r.Rand)
}

// Completes сообщает, закрывает ли страница запись. Проверка доверяет size/length клиента.
func (r ChunkRequest) Completes() bool {
	return int64(r.Page+1)*int64(r.Size) >= int64(r.Length)
}
