package collectorhttp

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/artifact"
	"github.com/sir_venger/jsonl_collector/internal/usecase/reassembler"
)

// DefaultMaxBodyBytes ограничивает тело запроса и его распакованный размер.
const DefaultMaxBodyBytes = 64 << 20

// Records — доступ к опубликованным записям и статистике диска.
type Records interface {
	Open(name string) (*os.File, error)
	Usage() (artifact.Usage, error)
}

type Deps struct {
	Reassembler  reassembler.Service
	Records      Records
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

// Server serves the collector HTTP API on top of the reassembler.
type Server struct {
	Deps
}

// New создаёт HTTP-обработчик сборщика.
func New(deps Deps) http.Handler {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	srv := &Server{Deps: deps}

	return srv.routes()
}

// routes регистрирует обработчики страниц, записей, здоровья и GC.
func (a *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", a.health)
	r.Get("/records/{name}", a.fetchRecord)
	r.Post("/admin/gc", a.gcOnce)

	// Клиент загружает на произвольный URL эндпоинта, поэтому путь не важен.
	r.Put("/*", a.putChunk)
	r.Options("/*", preflight)

	return r
}
