package collectorhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sir_venger/jsonl_collector/internal/models"
	"github.com/sir_venger/jsonl_collector/pkg/chunkproto"
)

// decodeChunk распаковывает тело запроса и превращает его в ChunkRequest.
func decodeChunk(r *http.Request, limit int64) (models.ChunkRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return models.ChunkRequest{}, fmt.Errorf("%w: read body: %v", models.ErrDecode, err)
	}
	if int64(len(body)) > limit {
		return models.ChunkRequest{}, fmt.Errorf("%w: body exceeds %d bytes", models.ErrMalformed, limit)
	}

	raw, err := decompress(r.Header.Get("Content-Encoding"), body, limit)
	if err != nil {
		return models.ChunkRequest{}, err
	}

	var wire chunkproto.Request
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.ChunkRequest{}, fmt.Errorf("%w: parse json: %v", models.ErrDecode, err)
	}

	return fromWire(wire)
}

// decompress по умолчанию ждёт zlib-поток: так браузерный CompressionStream('deflate') кодирует тело.
func decompress(encoding string, body []byte, limit int64) ([]byte, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case chunkproto.EncodingGzip, "x-gzip":
		rc, err = gzip.NewReader(bytes.NewReader(body))
	case "", chunkproto.EncodingDeflate:
		rc, err = zlib.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("%w: unsupported content encoding %q", models.ErrDecode, encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", models.ErrDecode, err)
	}
	defer rc.Close()

	out, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", models.ErrDecode, err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: decompressed body exceeds %d bytes", models.ErrMalformed, limit)
	}

	return out, nil
}

func fromWire(w chunkproto.Request) (models.ChunkRequest, error) {
	var (
		req  models.ChunkRequest
		errs []error
	)

	scalar := func(name string, raw json.RawMessage, dst *string) {
		v, err := scalarString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", name, err))
			return
		}
		*dst = v
	}
	scalar("roomid", w.RoomID, &req.RoomID)
	scalar("src", w.Src, &req.Src)
	scalar("timestamp", w.Timestamp, &req.Timestamp)
	scalar("rand", w.Rand, &req.Rand)

	integer := func(name string, v *int, dst *int) {
		if v == nil {
			errs = append(errs, fmt.Errorf("field %q is required", name))
			return
		}
		*dst = *v
	}
	integer("page", w.Page, &req.Page)
	integer("size", w.Size, &req.Size)
	integer("length", w.Length, &req.Length)

	if w.JSONL == nil {
		errs = append(errs, fmt.Errorf("field %q is required", "jsonl"))
	} else {
		req.Payload = *w.JSONL
	}

	if len(errs) > 0 {
		return models.ChunkRequest{}, fmt.Errorf("%w: %v", models.ErrMalformed, errors.Join(errs...))
	}

	return req, req.Validate()
}

// scalarString рендерит строку как есть, а число — его исходной записью.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("is required")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.New("must be a string or a number")
	}
}
