package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/app/collectorhttp"
	"github.com/sir_venger/jsonl_collector/internal/artifact"
	"github.com/sir_venger/jsonl_collector/internal/usecase/reassembler"
	"github.com/sir_venger/jsonl_collector/pkg/chunkclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type collector struct {
	url   string
	store *artifact.Store
	svc   *reassembler.Reassembler
}

func startCollector(t *testing.T) collector {
	t.Helper()
	store, err := artifact.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	svc := reassembler.New(reassembler.Deps{
		Artifacts:  store,
		Logger:     zerolog.Nop(),
		SessionTTL: 24 * time.Hour,
	})
	srv := httptest.NewServer(collectorhttp.New(collectorhttp.Deps{
		Reassembler: svc,
		Records:     store,
		Logger:      zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)

	return collector{url: srv.URL, store: store, svc: svc}
}

func danmaku(n int, tag string) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf(`[%d,{"tag":%q,"i":%d}]`, 1700000000000+i, tag, i)
	}
	return lines
}

func downloadRecord(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(b)
}

func TestUploadAndFetchRecord(t *testing.T) {
	c := startCollector(t)
	lines := danmaku(2500, "bg")

	res, err := chunkclient.New().Upload(context.Background(), c.url+"/upload", chunkclient.Upload{
		RoomID:    "21452505",
		Src:       "background",
		Timestamp: "1700000000000",
		Lines:     lines,
		PageSize:  1000,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.True(t, res.Done)

	got := downloadRecord(t, c.url+"/records/21452505-background-1700000000000.jsonl.gz")
	assert.Equal(t, strings.Join(lines, "\n")+"\n", got)
	assert.Equal(t, 0, c.svc.OpenSessions())
}

func TestConcurrentUploadsDoNotIntermix(t *testing.T) {
	c := startCollector(t)
	cli := chunkclient.New()

	sources := []string{"background", "webpage", "replay", "mobile"}
	g, ctx := errgroup.WithContext(context.Background())
	for _, src := range sources {
		src := src
		g.Go(func() error {
			_, err := cli.Upload(ctx, c.url, chunkclient.Upload{
				RoomID:    "7",
				Src:       src,
				Timestamp: "1",
				Lines:     danmaku(300, src),
				PageSize:  7,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, src := range sources {
		got := downloadRecord(t, c.url+"/records/7-"+src+"-1.jsonl.gz")
		assert.Equal(t, strings.Join(danmaku(300, src), "\n")+"\n", got, src)
	}
}

func TestSamePrefixLastCompletionWins(t *testing.T) {
	c := startCollector(t)
	cli := chunkclient.New()

	up := chunkclient.Upload{RoomID: "1", Src: "bg", Timestamp: "2", PageSize: 2}

	first := up
	first.Rand, first.Lines = "1", danmaku(4, "first")
	_, err := cli.Upload(context.Background(), c.url, first)
	require.NoError(t, err)

	second := up
	second.Rand, second.Lines = "2", danmaku(3, "second")
	_, err = cli.Upload(context.Background(), c.url, second)
	require.NoError(t, err)

	assert.Equal(t, strings.Join(danmaku(3, "second"), "\n")+"\n", downloadRecord(t, c.url+"/records/1-bg-2.jsonl.gz"))
}

func TestManualGCRemovesStalePartials(t *testing.T) {
	c := startCollector(t)

	// Частичный файл без сессии: так выглядит загрузка, брошенная до рестарта.
	key := "file123-bg-1-9"
	require.NoError(t, c.store.Append("file123-bg-1-9", "line"))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(c.store.PartialPath("file123-bg-1-9"), old, old))

	resp, err := http.Post(c.url+"/admin/gc", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = os.Stat(c.store.PartialPath("file123-bg-1-9"))
	assert.True(t, os.IsNotExist(err), "stale partial %s not removed", key)
}
