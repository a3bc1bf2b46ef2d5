package httperrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sir_venger/jsonl_collector/internal/models"
	"github.com/sir_venger/jsonl_collector/pkg/chunkproto"
)

// Kind возвращает короткое имя класса ошибки для логов.
func Kind(err error) string {
	switch {
	case errors.Is(err, models.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, models.ErrDecode):
		return "decode"
	case errors.Is(err, models.ErrMalformed):
		return "malformed"
	case errors.Is(err, models.ErrStorage):
		return "storage"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// Retryable сообщает, есть ли смысл клиенту повторять запрос без исправлений.
func Retryable(err error) bool {
	return errors.Is(err, models.ErrOutOfOrder) || errors.Is(err, models.ErrStorage)
}

// Write отдаёт ошибку в JSON-конверте {code:-1,msg}. HTTP-статус всегда 200.
func Write(w http.ResponseWriter, err error) {
	WriteJSON(w, chunkproto.Response{
		Code: chunkproto.CodeError,
		Msg:  err.Error(),
	})
}

// WriteJSON сериализует ответ с кодом 200.
func WriteJSON(w http.ResponseWriter, resp chunkproto.Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
