package reassembler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/artifact"
	"github.com/sir_venger/jsonl_collector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	svc   *Reassembler
	store *artifact.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := artifact.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	return fixture{
		svc: New(Deps{
			Artifacts:  store,
			Logger:     zerolog.Nop(),
			SessionTTL: time.Hour,
		}),
		store: store,
	}
}

func chunk(rand string, page, size, length int, payload string) models.ChunkRequest {
	return models.ChunkRequest{
		RoomID:    "100",
		Src:       "background",
		Timestamp: "1700000000",
		Rand:      rand,
		Page:      page,
		Size:      size,
		Length:    length,
		Payload:   payload,
	}
}

func gunzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	b, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(b)
}

func TestSubmitChunk_FourPages(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for page, payload := range []string{"a", "b", "c"} {
		res, err := fx.svc.SubmitChunk(ctx, chunk("1", page, 10, 40, payload))
		require.NoError(t, err)
		assert.Equal(t, models.ChunkResult{Page: page}, res)
	}

	res, err := fx.svc.SubmitChunk(ctx, chunk("1", 3, 10, 40, "d"))
	require.NoError(t, err)
	assert.Equal(t, models.ChunkResult{Page: 3, Done: true}, res)

	req := chunk("1", 0, 0, 0, "")
	assert.Equal(t, "a\nb\nc\nd\n", gunzip(t, fx.store.RecordPath(req.Prefix())))
	assert.NoFileExists(t, fx.store.PartialPath(req.Key()))
	assert.Equal(t, 0, fx.svc.OpenSessions())
}

func TestSubmitChunk_OutOfOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SubmitChunk(ctx, chunk("1", 1, 10, 40, "x"))
	var ooo *models.OutOfOrderError
	require.True(t, errors.As(err, &ooo))
	assert.Equal(t, 0, ooo.Expected)
	assert.Equal(t, 1, ooo.Got)
	assert.Equal(t, 0, fx.svc.OpenSessions(), "rejected first chunk must not open a session")

	_, err = fx.svc.SubmitChunk(ctx, chunk("1", 0, 10, 40, "a"))
	require.NoError(t, err)

	_, err = fx.svc.SubmitChunk(ctx, chunk("1", 3, 10, 40, "skip"))
	require.True(t, errors.As(err, &ooo))
	assert.Equal(t, 1, ooo.Expected)
	assert.Equal(t, 3, ooo.Got)

	key := chunk("1", 0, 0, 0, "").Key()
	assert.Equal(t, "a\n", gunzip(t, fx.store.PartialPath(key)))
	sess, ok := fx.svc.Sessions.Get(key)
	require.True(t, ok)
	assert.Equal(t, 0, sess.LastPage)
}

func TestSubmitChunk_ResubmitIsRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SubmitChunk(ctx, chunk("1", 0, 10, 40, "a"))
	require.NoError(t, err)
	_, err = fx.svc.SubmitChunk(ctx, chunk("1", 1, 10, 40, "b"))
	require.NoError(t, err)

	for _, page := range []int{0, 1} {
		_, err = fx.svc.SubmitChunk(ctx, chunk("1", page, 10, 40, "dup"))
		require.ErrorIs(t, err, models.ErrOutOfOrder)
		assert.Equal(t, "expected page 2, got "+strconv.Itoa(page), err.Error())
	}

	assert.Equal(t, "a\nb\n", gunzip(t, fx.store.PartialPath(chunk("1", 0, 0, 0, "").Key())))
}

func TestSubmitChunk_CompletionBoundary(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.SubmitChunk(ctx, chunk("1", 0, 10, 20, "a"))
	require.NoError(t, err)
	assert.False(t, res.Done)

	res, err = fx.svc.SubmitChunk(ctx, chunk("1", 1, 10, 20, "b"))
	require.NoError(t, err)
	assert.True(t, res.Done)
}

func TestSubmitChunk_KeyReusableAfterCompletion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.SubmitChunk(ctx, chunk("1", 0, 10, 5, "first"))
	require.NoError(t, err)
	require.True(t, res.Done)

	res, err = fx.svc.SubmitChunk(ctx, chunk("1", 0, 10, 5, "second"))
	require.NoError(t, err)
	require.True(t, res.Done)

	assert.Equal(t, "second\n", gunzip(t, fx.store.RecordPath(chunk("1", 0, 0, 0, "").Prefix())))
}

func TestSubmitChunk_Malformed(t *testing.T) {
	fx := newFixture(t)

	req := chunk("", 0, 10, 10, "a")
	_, err := fx.svc.SubmitChunk(context.Background(), req)
	require.ErrorIs(t, err, models.ErrMalformed)
}

type failingArtifacts struct {
	*artifact.Store
	failAppend  atomic.Bool
	failPublish atomic.Bool
}

func (f *failingArtifacts) Append(key models.UploadKey, payload string) error {
	if f.failAppend.Load() {
		return fmt.Errorf("%w: disk full", models.ErrStorage)
	}
	return f.Store.Append(key, payload)
}

func (f *failingArtifacts) Publish(key models.UploadKey, prefix models.RecordPrefix) (string, bool, error) {
	if f.failPublish.Load() {
		return "", false, fmt.Errorf("%w: permission denied", models.ErrStorage)
	}
	return f.Store.Publish(key, prefix)
}

func TestSubmitChunk_StorageErrorLeavesStateUnchanged(t *testing.T) {
	store, err := artifact.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	arts := &failingArtifacts{Store: store}
	svc := New(Deps{Artifacts: arts, Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err = svc.SubmitChunk(ctx, chunk("1", 0, 10, 30, "a"))
	require.NoError(t, err)

	arts.failAppend.Store(true)
	_, err = svc.SubmitChunk(ctx, chunk("1", 1, 10, 30, "b"))
	require.ErrorIs(t, err, models.ErrStorage)

	arts.failAppend.Store(false)
	res, err := svc.SubmitChunk(ctx, chunk("1", 1, 10, 30, "b"))
	require.NoError(t, err, "client retries the same page")
	assert.Equal(t, 1, res.Page)

	arts.failPublish.Store(true)
	_, err = svc.SubmitChunk(ctx, chunk("1", 2, 10, 30, "c"))
	require.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, 0, svc.OpenSessions(), "session is dropped before publishing")
}

func TestSubmitChunk_RestartAfterFailedPublish(t *testing.T) {
	store, err := artifact.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	arts := &failingArtifacts{Store: store}
	svc := New(Deps{Artifacts: arts, Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err = svc.SubmitChunk(ctx, chunk("1", 0, 10, 20, "old0"))
	require.NoError(t, err)
	arts.failPublish.Store(true)
	_, err = svc.SubmitChunk(ctx, chunk("1", 1, 10, 20, "old1"))
	require.ErrorIs(t, err, models.ErrStorage)
	assert.NoFileExists(t, store.PartialPath(chunk("1", 0, 0, 0, "").Key()))

	arts.failPublish.Store(false)
	for page, payload := range []string{"new0", "new1"} {
		_, err = svc.SubmitChunk(ctx, chunk("1", page, 10, 20, payload))
		require.NoError(t, err)
	}

	assert.Equal(t, "new0\nnew1\n", gunzip(t, store.RecordPath(chunk("1", 0, 0, 0, "").Prefix())))
}

func TestSubmitChunk_NewSessionIgnoresLeftoverPartial(t *testing.T) {
	fx := newFixture(t)
	key := chunk("1", 0, 0, 0, "").Key()
	require.NoError(t, fx.store.Append(key, "from a previous process"))

	res, err := fx.svc.SubmitChunk(context.Background(), chunk("1", 0, 1, 1, "fresh"))
	require.NoError(t, err)
	require.True(t, res.Done)

	assert.Equal(t, "fresh\n", gunzip(t, fx.store.RecordPath(chunk("1", 0, 0, 0, "").Prefix())))
}

type recordingMirror struct {
	paths []string
	err   error
}

func (m *recordingMirror) Put(_ context.Context, p string) error {
	m.paths = append(m.paths, p)
	return m.err
}

func TestSubmitChunk_Mirror(t *testing.T) {
	fx := newFixture(t)
	m := &recordingMirror{err: errors.New("s3 down")}
	fx.svc.Mirror = m

	res, err := fx.svc.SubmitChunk(context.Background(), chunk("1", 0, 1, 1, "a"))
	require.NoError(t, err, "mirror failure must not fail the chunk")
	assert.True(t, res.Done)
	require.Len(t, m.paths, 1)
	assert.Equal(t, fx.store.RecordPath(chunk("1", 0, 0, 0, "").Prefix()), m.paths[0])
}

func TestSubmitChunk_ConcurrentDistinctKeys(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	const pages = 50

	g, gctx := errgroup.WithContext(ctx)
	for _, room := range []string{"A", "B", "C"} {
		room := room
		g.Go(func() error {
			for page := 0; page < pages; page++ {
				req := chunk("7", page, 1, pages, fmt.Sprintf("%s%d", room, page))
				req.RoomID = room
				if _, err := fx.svc.SubmitChunk(gctx, req); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, room := range []string{"A", "B", "C"} {
		want := ""
		for page := 0; page < pages; page++ {
			want += fmt.Sprintf("%s%d\n", room, page)
		}
		req := chunk("7", 0, 0, 0, "")
		req.RoomID = room
		assert.Equal(t, want, gunzip(t, fx.store.RecordPath(req.Prefix())))
	}
}

func TestSubmitChunk_ConcurrentSamePageAcceptedOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	const racers = 16

	var accepted atomic.Int32
	g := new(errgroup.Group)
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			_, err := fx.svc.SubmitChunk(ctx, chunk("1", 0, 10, 100, "a"))
			if err == nil {
				accepted.Add(1)
				return nil
			}
			if errors.Is(err, models.ErrOutOfOrder) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, "a\n", gunzip(t, fx.store.PartialPath(chunk("1", 0, 0, 0, "").Key())))
}
