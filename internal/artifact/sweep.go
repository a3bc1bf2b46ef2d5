package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sir_venger/jsonl_collector/internal/models"
)

// SweepOrphans удаляет частичные артефакты старше ttl на момент now, которыми не владеет ни одна живая сессия.
// Такие файлы остаются после рестарта процесса: состояние сессий теряется, файлы — нет.
// Файлы, имя которых не похоже на ключ загрузки, не трогаются.
func (s *Store) SweepOrphans(now time.Time, ttl time.Duration, live func(models.UploadKey) bool) (int, error) {
	entries, err := os.ReadDir(s.scratchDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}

		key := models.UploadKey(strings.TrimSuffix(e.Name(), Extension))
		if !isUploadKey(key) {
			continue
		}
		if live != nil && live(key) {
			continue
		}

		fi, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) < ttl {
			continue
		}

		if err := os.Remove(filepath.Join(s.scratchDir, e.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// isUploadKey проверяет форму {roomid}-{src}-{timestamp}-{rand}.
// src может содержать дефисы, поэтому частей не меньше четырёх.
func isUploadKey(key models.UploadKey) bool {
	parts := strings.Split(string(key), "-")
	if len(parts) < 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
