package collectorhttp

import (
	"net/http"
	"time"
)

// gcOnce вручную запускает сбор брошенных сессий и частичных файлов.
func (a *Server) gcOnce(w http.ResponseWriter, r *http.Request) {
	stats := a.Reassembler.Reap(time.Now())
	requestLogger(r).Info().Int("sessions", stats.Sessions).Int("orphans", stats.Orphans).Msg("manual gc")
	w.WriteHeader(http.StatusNoContent)
}
