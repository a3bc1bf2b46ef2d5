package collectorhttp

import (
	"encoding/json"
	"net/http"
)

// healthStats — payload ответа /health.
type healthStats struct {
	OK           bool  `json:"ok"`
	OpenSessions int   `json:"open_sessions"`
	PartialFiles int   `json:"partial_files"`
	PartialBytes int64 `json:"partial_bytes"`
	RecordFiles  int   `json:"record_files"`
	RecordBytes  int64 `json:"record_bytes"`
}

// health возвращает число открытых сессий и объём артефактов.
func (a *Server) health(w http.ResponseWriter, r *http.Request) {
	usage, err := a.Records.Usage()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(healthStats{
		OK:           true,
		OpenSessions: a.Reassembler.OpenSessions(),
		PartialFiles: usage.PartialFiles,
		PartialBytes: usage.PartialBytes,
		RecordFiles:  usage.RecordFiles,
		RecordBytes:  usage.RecordBytes,
	})
	if err != nil {
		requestLogger(r).Warn().Err(err).Msg("encode health")
	}
}
