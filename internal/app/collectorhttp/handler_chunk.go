package collectorhttp

import (
	"net/http"

	"github.com/sir_venger/jsonl_collector/pkg/chunkproto"
	"github.com/sir_venger/jsonl_collector/pkg/httperrors"
)

// putChunk принимает одну страницу записи.
func (a *Server) putChunk(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	req, err := decodeChunk(r, a.MaxBodyBytes)
	if err != nil {
		log.Warn().Err(err).Str("kind", httperrors.Kind(err)).Msg("reject chunk")
		httperrors.Write(w, err)
		return
	}

	res, err := a.Reassembler.SubmitChunk(r.Context(), req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("kind", httperrors.Kind(err)).
			Bool("retryable", httperrors.Retryable(err)).
			Str("key", string(req.Key())).
			Int("page", req.Page).
			Msg("reject chunk")
		httperrors.Write(w, err)
		return
	}

	page := res.Page
	httperrors.WriteJSON(w, chunkproto.Response{
		Code: chunkproto.CodeOK,
		Page: &page,
		Done: res.Done,
	})
}
