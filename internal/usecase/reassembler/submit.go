package reassembler

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/models"
)

// SubmitChunk принимает очередную страницу сессии.
// Проверка порядка, дозапись и обновление номера страницы выполняются под мьютексом ключа.
func (s *Reassembler) SubmitChunk(ctx context.Context, req models.ChunkRequest) (models.ChunkResult, error) {
	if err := req.Validate(); err != nil {
		return models.ChunkResult{}, err
	}

	key := req.Key()
	prefix := req.Prefix()
	log := s.Logger.With().Str("key", string(key)).Int("page", req.Page).Logger()

	unlock := s.Sessions.Lock(key)
	defer unlock()

	sess, ok := s.Sessions.Get(key)
	if !ok {
		sess = models.Session{
			Key:      key,
			Prefix:   prefix,
			LastPage: -1,
			State:    models.SessionOpen,
			OpenedAt: s.Now(),
		}
	}

	if req.Page != sess.NextPage() {
		log.Debug().Int("expected", sess.NextPage()).Msg("chunk out of order")
		return models.ChunkResult{}, &models.OutOfOrderError{Key: key, Expected: sess.NextPage(), Got: req.Page}
	}

	// Новая сессия всегда начинается с пустого файла: от прерванной попытки
	// с тем же ключом мог остаться частичный артефакт.
	if !ok {
		if err := s.Artifacts.Discard(key); err != nil {
			return models.ChunkResult{}, err
		}
	}

	if err := s.Artifacts.Append(key, req.Payload); err != nil {
		return models.ChunkResult{}, err
	}

	sess.LastPage = req.Page
	sess.UpdatedAt = s.Now()
	s.Sessions.Put(sess)

	if !req.Completes() {
		return models.ChunkResult{Page: req.Page}, nil
	}

	sess.State = models.SessionCompleted
	s.Sessions.Delete(key)

	path, replaced, err := s.Artifacts.Publish(key, prefix)
	if err != nil {
		log.Error().Err(err).Msg("publish record")
		if discardErr := s.Artifacts.Discard(key); discardErr != nil {
			log.Error().Err(discardErr).Msg("discard partial")
		}
		return models.ChunkResult{}, err
	}
	if replaced {
		log.Warn().Str("record", path).Msg("record overwritten by upload with another nonce")
	}

	log.Info().
		Str("record", path).
		Stringer("state", sess.State).
		Dur("elapsed", sess.UpdatedAt.Sub(sess.OpenedAt)).
		Msg("record published")

	s.mirror(ctx, log, path)

	return models.ChunkResult{Page: req.Page, Done: true}, nil
}

// mirror не влияет на ответ клиенту: локальная запись уже опубликована.
// Обрыв соединения клиента не должен прерывать загрузку копии.
func (s *Reassembler) mirror(ctx context.Context, log zerolog.Logger, path string) {
	if s.Mirror == nil {
		return
	}
	if err := s.Mirror.Put(context.WithoutCancel(ctx), path); err != nil {
		log.Error().Err(err).Str("record", path).Msg("mirror record")
	}
}
