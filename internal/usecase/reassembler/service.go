package reassembler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/artifact"
	"github.com/sir_venger/jsonl_collector/internal/models"
	"github.com/sir_venger/jsonl_collector/internal/repo"
)

type (
	// Artifacts — файловое хранилище частичных и итоговых артефактов.
	Artifacts interface {
		Append(key models.UploadKey, payload string) error
		Publish(key models.UploadKey, prefix models.RecordPrefix) (string, bool, error)
		Discard(key models.UploadKey) error
		SweepOrphans(now time.Time, ttl time.Duration, live func(models.UploadKey) bool) (int, error)
	}

	// Mirror дублирует опубликованную запись во внешнее хранилище.
	Mirror interface {
		Put(ctx context.Context, localPath string) error
	}

	// Service принимает страницы и собирает из них записи.
	Service interface {
		SubmitChunk(ctx context.Context, req models.ChunkRequest) (models.ChunkResult, error)
		Reap(now time.Time) ReapStats
		OpenSessions() int
	}
)

type Deps struct {
	Sessions   *repo.SessionStore
	Artifacts  Artifacts
	Mirror     Mirror
	Logger     zerolog.Logger
	SessionTTL time.Duration
	Now        func() time.Time
}

type Reassembler struct {
	Deps
}

var _ Service = (*Reassembler)(nil)

// New конструирует сборщик; store сессий создаётся, если не передан.
func New(deps Deps) *Reassembler {
	if deps.Sessions == nil {
		deps.Sessions = repo.NewSessionStore()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Reassembler{Deps: deps}
}

// OpenSessions возвращает число незавершённых сессий.
func (s *Reassembler) OpenSessions() int {
	return s.Sessions.Len()
}

var _ Artifacts = (*artifact.Store)(nil)
