package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/models"
)

// Extension — суффикс частичных и итоговых артефактов.
const Extension = ".jsonl.gz"

// Store работает с каталогом частичных артефактов и каталогом итоговых записей.
type Store struct {
	scratchDir string
	dataDir    string
	log        zerolog.Logger

	rename func(oldpath, newpath string) error
	remove func(name string) error
}

// New создаёт хранилище и гарантирует наличие обоих каталогов.
func New(scratchDir, dataDir string) (*Store, error) {
	for _, dir := range []string{scratchDir, dataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create dir %s: %v", models.ErrStorage, dir, err)
		}
	}

	return &Store{
		scratchDir: scratchDir,
		dataDir:    dataDir,
		log:        zerolog.Nop(),
		rename:     os.Rename,
		remove:     os.Remove,
	}, nil
}

// WithLogger задаёт логгер для некритичных сбоев хранилища.
func (s *Store) WithLogger(l zerolog.Logger) *Store {
	s.log = l
	return s
}

// PartialPath возвращает путь к частичному артефакту сессии.
func (s *Store) PartialPath(key models.UploadKey) string {
	return filepath.Join(s.scratchDir, string(key)+Extension)
}

// RecordPath возвращает путь к итоговому артефакту.
func (s *Store) RecordPath(prefix models.RecordPrefix) string {
	return filepath.Join(s.dataDir, string(prefix)+Extension)
}

// Append дописывает payload и перевод строки отдельной gzip-секцией и делает fsync.
// При ошибке файл обрезается до исходного размера, чтобы повтор страницы не оставил мусора.
func (s *Store) Append(key models.UploadKey, payload string) (err error) {
	path := s.PartialPath(key)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open partial: %v", models.ErrStorage, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: stat partial: %v", models.ErrStorage, err)
	}
	before := info.Size()

	defer func() {
		if err != nil {
			_ = f.Truncate(before)
		}
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: close partial: %v", models.ErrStorage, closeErr)
		}
	}()

	zw := gzip.NewWriter(f)
	if _, err = io.WriteString(zw, payload); err != nil {
		return fmt.Errorf("%w: write partial: %v", models.ErrStorage, err)
	}
	if _, err = io.WriteString(zw, "\n"); err != nil {
		return fmt.Errorf("%w: write partial: %v", models.ErrStorage, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("%w: flush partial: %v", models.ErrStorage, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("%w: sync partial: %v", models.ErrStorage, err)
	}

	return nil
}

// Publish переносит частичный артефакт на место итогового, перезаписывая существующий.
// Возвращает путь к итоговому файлу и флаг того, что прежний файл был перезаписан.
func (s *Store) Publish(key models.UploadKey, prefix models.RecordPrefix) (string, bool, error) {
	src := s.PartialPath(key)
	dst := s.RecordPath(prefix)

	_, statErr := os.Stat(dst)
	replaced := statErr == nil

	err := s.rename(src, dst)
	if err == nil {
		return dst, replaced, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", false, fmt.Errorf("%w: rename partial: %v", models.ErrStorage, err)
	}

	// scratch и data на разных файловых системах: копируем во временный файл рядом с целью.
	if err = copyAcross(src, dst); err != nil {
		return "", false, err
	}
	// Запись уже опубликована; оставшийся частичный файл подберёт SweepOrphans.
	if err = s.remove(src); err != nil {
		s.log.Warn().Err(err).Str("partial", src).Str("record", dst).Msg("partial left after cross-device publish")
	}

	return dst, replaced, nil
}

func copyAcross(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open partial: %v", models.ErrStorage, err)
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create temp record: %v", models.ErrStorage, err)
	}

	if _, err = io.Copy(out, in); err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: copy partial: %v", models.ErrStorage, err)
	}

	return nil
}

// Discard удаляет частичный артефакт; отсутствие файла не ошибка.
func (s *Store) Discard(key models.UploadKey) error {
	if err := os.Remove(s.PartialPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove partial: %v", models.ErrStorage, err)
	}
	return nil
}

// Open открывает итоговую запись по имени файла вида {prefix}.jsonl.gz.
func (s *Store) Open(name string) (*os.File, error) {
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, Extension) || strings.HasPrefix(name, ".") {
		return nil, models.ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.dataDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: open record: %v", models.ErrStorage, err)
	}

	return f, nil
}
