// Package chunkproto описывает протокол постраничной загрузки jsonl-записей.
package chunkproto

import "encoding/json"

// Коды ответа: транспортный статус всегда 200, успех определяется полем code.
const (
	CodeOK    = 0
	CodeError = -1
)

// Значения Content-Encoding тела запроса.
const (
	EncodingDeflate = "deflate"
	EncodingGzip    = "gzip"
)

// Request — тело PUT-запроса до сжатия.
// Ключевые поля передаются JSON-скалярами: эталонный клиент шлёт числа, строки тоже допустимы.
type Request struct {
	RoomID    json.RawMessage `json:"roomid"`
	Src       json.RawMessage `json:"src"`
	Timestamp json.RawMessage `json:"timestamp"`
	Rand      json.RawMessage `json:"rand"`
	Page      *int            `json:"page"`
	Size      *int            `json:"size"`
	Length    *int            `json:"length"`
	JSONL     *string         `json:"jsonl"`
}

// Response — тело ответа.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Page *int   `json:"page,omitempty"`
	Done bool   `json:"done,omitempty"`
}
