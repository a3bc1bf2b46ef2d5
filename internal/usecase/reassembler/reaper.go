package reassembler

import (
	"context"
	"time"
)

// ReapStats — итог одного прохода сборщика мусора.
type ReapStats struct {
	Sessions int `json:"sessions"`
	Orphans  int `json:"orphans"`
}

// Reap закрывает сессии, простаивающие дольше SessionTTL, и удаляет осиротевшие частичные файлы.
func (s *Reassembler) Reap(now time.Time) ReapStats {
	var stats ReapStats
	if s.SessionTTL <= 0 {
		return stats
	}

	for _, sess := range s.Sessions.Stale(now.Add(-s.SessionTTL)) {
		unlock := s.Sessions.Lock(sess.Key)
		// Сессия могла продвинуться, пока мы ждали мьютекс.
		cur, ok := s.Sessions.Get(sess.Key)
		if ok && !cur.UpdatedAt.After(sess.UpdatedAt) {
			s.Sessions.Delete(sess.Key)
			if err := s.Artifacts.Discard(sess.Key); err != nil {
				s.Logger.Error().Err(err).Str("key", string(sess.Key)).Msg("discard partial")
			}
			stats.Sessions++
		}
		unlock()
	}

	orphans, err := s.Artifacts.SweepOrphans(now, s.SessionTTL, s.Sessions.Has)
	if err != nil {
		s.Logger.Error().Err(err).Msg("sweep orphan partials")
	}
	stats.Orphans = orphans

	if stats.Sessions > 0 || stats.Orphans > 0 {
		s.Logger.Info().Int("sessions", stats.Sessions).Int("orphans", stats.Orphans).Msg("reaped abandoned uploads")
	}

	return stats
}

// StartReaper стартует периодическую очистку и возвращает функцию остановки.
func (s *Reassembler) StartReaper(ctx context.Context, every time.Duration) func() {
	if every <= 0 || s.SessionTTL <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Reap(s.Now())
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
