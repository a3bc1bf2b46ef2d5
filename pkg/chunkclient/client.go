package chunkclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zlib"
	"github.com/sir_venger/jsonl_collector/pkg/chunkproto"
)

// DefaultPageSize — сколько строк уходит в одной странице, если не задано.
const DefaultPageSize = 1000

// Upload описывает одну запись, которую нужно загрузить постранично.
type Upload struct {
	RoomID    string
	Src       string
	Timestamp string
	// Rand — nonce сессии; пустой генерируется автоматически.
	Rand     string
	Lines    []string
	PageSize int
}

// Result возвращается после того, как сервер подтвердил последнюю страницу.
// Для пустого набора строк ничего не отправляется: Pages == 0, Done == false.
type Result struct {
	Rand  string
	Pages int
	Bytes int64
	Done  bool
}

type Client interface {
	// Upload загружает запись на эндпоинт страница за страницей.
	Upload(ctx context.Context, endpoint string, up Upload) (Result, error)
}

type httpClient struct {
	c        *retryablehttp.Client
	progress io.Writer
}

// Option настраивает клиент.
type Option func(*httpClient)

// WithProgress включает индикатор выполнения в указанный writer.
func WithProgress(w io.Writer) Option {
	return func(h *httpClient) { h.progress = w }
}

// WithRetries задаёт число повторов и максимальную паузу между ними.
func WithRetries(max int, wait time.Duration) Option {
	return func(h *httpClient) {
		h.c.RetryMax = max
		h.c.RetryWaitMax = wait
	}
}

// New создаёт HTTP-клиент с повторами на сетевых ошибках и 5xx.
func New(opts ...Option) Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3

	h := &httpClient{c: rc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upload режет строки на страницы по PageSize и отправляет их по порядку.
func (h *httpClient) Upload(ctx context.Context, endpoint string, up Upload) (Result, error) {
	if up.PageSize <= 0 {
		up.PageSize = DefaultPageSize
	}
	if up.Rand == "" {
		up.Rand = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	// Пустую запись не отправляем: сервер не создаёт файл ни из чего.
	if len(up.Lines) == 0 {
		return Result{Rand: up.Rand}, nil
	}

	pages := (len(up.Lines) + up.PageSize - 1) / up.PageSize

	bar := newProgressBar(h.progress, fmt.Sprintf("Uploading %s-%s-%s", up.RoomID, up.Src, up.Timestamp), pages)
	res := Result{Rand: up.Rand}

	for page := 0; page < pages; page++ {
		body, err := encodePage(up, page)
		if err != nil {
			bar.Fail(err)
			return res, err
		}

		resp, err := h.put(ctx, endpoint, body)
		if err != nil {
			bar.Fail(err)
			return res, err
		}

		if resp.Code != chunkproto.CodeOK {
			// Ответ на предыдущую страницу мог потеряться после того, как сервер её принял.
			var expected, got int
			if _, scanErr := fmt.Sscanf(resp.Msg, "expected page %d, got %d", &expected, &got); scanErr == nil && got == page && expected == page+1 {
				bar.Add(len(body))
				res.Pages++
				res.Bytes += int64(len(body))
				continue
			}
			err = fmt.Errorf("page %d: non-zero code %d: %s", page, resp.Code, resp.Msg)
			bar.Fail(err)
			return res, err
		}

		bar.Add(len(body))
		res.Pages++
		res.Bytes += int64(len(body))
		res.Done = resp.Done
	}

	if !res.Done {
		err := fmt.Errorf("server did not confirm completion after %d pages", res.Pages)
		bar.Fail(err)
		return res, err
	}

	bar.Finish()
	return res, nil
}

func (h *httpClient) put(ctx context.Context, endpoint string, body []byte) (chunkproto.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return chunkproto.Response{}, err
	}
	req.Header.Set("Content-Encoding", chunkproto.EncodingDeflate)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.c.Do(req)
	if err != nil {
		return chunkproto.Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 3000))
		return chunkproto.Response{}, fmt.Errorf("HTTP status %s: %s", resp.Status, msg)
	}

	var out chunkproto.Response
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chunkproto.Response{}, fmt.Errorf("decode response: %w", err)
	}

	return out, nil
}

// encodePage собирает тело страницы и сжимает его zlib.
func encodePage(up Upload, page int) ([]byte, error) {
	from := page * up.PageSize
	to := min(from+up.PageSize, len(up.Lines))
	from = min(from, to)

	payload := struct {
		RoomID    json.RawMessage `json:"roomid"`
		Src       json.RawMessage `json:"src"`
		Timestamp json.RawMessage `json:"timestamp"`
		Rand      json.RawMessage `json:"rand"`
		Page      int             `json:"page"`
		Size      int             `json:"size"`
		Length    int             `json:"length"`
		JSONL     string          `json:"jsonl"`
	}{
		RoomID:    scalar(up.RoomID),
		Src:       scalar(up.Src),
		Timestamp: scalar(up.Timestamp),
		Rand:      scalar(up.Rand),
		Page:      page,
		Size:      up.PageSize,
		Length:    len(up.Lines),
		JSONL:     strings.Join(up.Lines[from:to], "\n"),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err = zw.Write(raw); err != nil {
		return nil, err
	}
	if err = zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// scalar отправляет числовые поля числами, как это делает браузерный клиент.
func scalar(v string) json.RawMessage {
	var n json.Number
	if err := json.Unmarshal([]byte(v), &n); err == nil && n.String() == v {
		return json.RawMessage(v)
	}
	b, _ := json.Marshal(v)
	return b
}
