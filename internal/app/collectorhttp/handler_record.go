package collectorhttp

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sir_venger/jsonl_collector/internal/models"
)

// fetchRecord отдаёт опубликованную запись в сжатом виде.
func (a *Server) fetchRecord(w http.ResponseWriter, r *http.Request) {
	f, err := a.Records.Open(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Type", "application/gzip")

	if _, err = io.Copy(w, f); err != nil {
		requestLogger(r).Warn().Err(err).Msg("stream record")
	}
}
