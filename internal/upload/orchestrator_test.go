package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// storage is a fake object store accepting part PUTs at /part/{n}.
type storage struct {
	mu       sync.Mutex
	received map[string][]byte
	order    []string
	failPath string
	noETag   bool
	srv      *httptest.Server
}

func newStorage(t *testing.T) *storage {
	t.Helper()
	s := &storage{received: make(map[string][]byte)}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.order = append(s.order, r.URL.Path)
		fail := r.URL.Path == s.failPath
		if !fail {
			s.received[r.URL.Path] = body
		}
		noETag := s.noETag
		s.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, "<Error>SignatureDoesNotMatch</Error>")
			return
		}
		if !noETag {
			w.Header().Set("ETag", fmt.Sprintf("%q", "etag"+strings.TrimPrefix(r.URL.Path, "/part/")))
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *storage) puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// fakeAPI hands out signed URLs pointing at storage.
type fakeAPI struct {
	mu            sync.Mutex
	storage       *storage
	initiateErr   error
	partURLErr    map[int]error
	onPartURL     func(partNumber int)
	partURLCalls  []int
	finaliseCalls []model.FinalizeRequest
}

func (f *fakeAPI) Initiate(_ context.Context, req model.InitiateRequest) (*model.InitiateResponse, error) {
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &model.InitiateResponse{MediaUUID: "media-" + req.Filename, UploadID: "upload-1"}, nil
}

func (f *fakeAPI) PartURL(_ context.Context, req model.PartURLRequest) (string, error) {
	f.mu.Lock()
	f.partURLCalls = append(f.partURLCalls, req.PartNumber)
	err := f.partURLErr[req.PartNumber]
	hook := f.onPartURL
	f.mu.Unlock()

	if hook != nil {
		hook(req.PartNumber)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/part/%d", f.storage.srv.URL, req.PartNumber), nil
}

func (f *fakeAPI) Finalise(_ context.Context, req model.FinalizeRequest) (*model.FinalizeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finaliseCalls = append(f.finaliseCalls, req)
	return &model.FinalizeResponse{ProcessedURL: "https://cdn.example.com/" + req.MediaUUID, Status: model.ProcessingPending}, nil
}

func testSource(size int) (Source, []byte) {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return Source{Name: "clip.mp4", MediaType: "video", Size: int64(size), Reader: bytes.NewReader(data)}, data
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.String())
}

func TestRun_TwelveMegabytesInFiveMegabyteParts(t *testing.T) {
	st := newStorage(t)
	api := &fakeAPI{storage: st}
	rec := &recorder{}
	src, data := testSource(12 * mb)

	o := New(api, slog.Default(), WithPartSize(5*mb), WithProgress(rec.record), WithHTTPClient(st.srv.Client()))
	res, err := o.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "https://cdn.example.com/media-clip.mp4", res.ProcessedURL)
	assert.Equal(t, model.ProcessingPending, res.ProcessingStatus)

	assert.Equal(t, []int{1, 2, 3}, api.partURLCalls)
	assert.Equal(t, []string{"/part/1", "/part/2", "/part/3"}, st.order)
	assert.Equal(t, data[0:5*mb], st.received["/part/1"])
	assert.Equal(t, data[5*mb:10*mb], st.received["/part/2"])
	assert.Equal(t, data[10*mb:], st.received["/part/3"])

	require.Len(t, api.finaliseCalls, 1)
	fin := api.finaliseCalls[0]
	assert.Equal(t, "media-clip.mp4", fin.MediaUUID)
	assert.Equal(t, "upload-1", fin.UploadID)
	assert.Equal(t, []model.CompletedPart{
		{ETag: `"etag1"`, PartNumber: 1},
		{ETag: `"etag2"`, PartNumber: 2},
		{ETag: `"etag3"`, PartNumber: 3},
	}, fin.Parts)

	assert.Equal(t, []string{
		"Initiating...",
		"Requesting URL for part 1/3...",
		"Uploading part 1/3...",
		"Requesting URL for part 2/3...",
		"Uploading part 2/3...",
		"Requesting URL for part 3/3...",
		"Uploading part 3/3...",
		"Finalising...",
		"Completed (status: 3)",
	}, rec.events)
}

func TestRun_MissingETagIsTolerated(t *testing.T) {
	st := newStorage(t)
	st.noETag = true
	api := &fakeAPI{storage: st}
	src, _ := testSource(7)

	res, err := New(api, nil, WithPartSize(4)).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, api.finaliseCalls, 1)
	assert.Equal(t, []model.CompletedPart{{PartNumber: 1}, {PartNumber: 2}}, api.finaliseCalls[0].Parts)
}

func TestRun_PartFailureSkipsFinalise(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeAPI, *storage)
	}{
		{name: "storage rejects PUT", setup: func(_ *fakeAPI, s *storage) { s.failPath = "/part/2" }},
		{name: "part URL refused", setup: func(a *fakeAPI, _ *storage) {
			a.partURLErr = map[int]error{2: errors.New("HTTP 403")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStorage(t)
			api := &fakeAPI{storage: st}
			tt.setup(api, st)
			src, _ := testSource(10)

			res, err := New(api, slog.Default(), WithPartSize(3)).Run(context.Background(), src)

			var perr *PartUploadError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, 2, perr.PartNumber)
			assert.NotErrorIs(t, err, ErrCancelled)
			assert.Equal(t, StatusFailed, res.Status)
			assert.Empty(t, api.finaliseCalls, "finalise must not run after a part failure")
			assert.Equal(t, []int{1, 2}, api.partURLCalls, "parts after the failure are not attempted")
		})
	}
}

func TestRun_CancelBeforePart(t *testing.T) {
	st := newStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAPI{storage: st, onPartURL: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	rec := &recorder{}
	src, _ := testSource(20)

	res, err := New(api, slog.Default(), WithPartSize(4), WithProgress(rec.record)).Run(ctx, src)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, 2, st.puts(), "no PUT for part 3 or later")
	assert.Empty(t, api.finaliseCalls)
	assert.Equal(t, "Upload cancelled", rec.events[len(rec.events)-1])
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	st := newStorage(t)
	api := &fakeAPI{storage: st}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src, _ := testSource(10)

	res, err := New(api, slog.Default()).Run(ctx, src)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Empty(t, api.partURLCalls)
	assert.Zero(t, st.puts())
}

func TestRun_InitiateFailure(t *testing.T) {
	st := newStorage(t)
	api := &fakeAPI{storage: st, initiateErr: errors.New("HTTP 401")}
	src, _ := testSource(10)

	res, err := New(api, slog.Default()).Run(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, api.partURLCalls)
}

func TestRun_EmptySource(t *testing.T) {
	api := &fakeAPI{}
	_, err := New(api, slog.Default()).Run(context.Background(), Source{Name: "empty", Reader: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestRun_Concurrent(t *testing.T) {
	st := newStorage(t)
	api := &fakeAPI{storage: st}
	src, data := testSource(10*mb + 17)

	res, err := New(api, slog.Default(), WithPartSize(mb), WithConcurrency(4)).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	require.Len(t, api.finaliseCalls, 1)
	parts := api.finaliseCalls[0].Parts
	require.Len(t, parts, 11)
	for i, p := range parts {
		assert.Equal(t, i+1, p.PartNumber, "finalise receives parts in part number order")
	}

	var joined []byte
	for i := 1; i <= 11; i++ {
		joined = append(joined, st.received[fmt.Sprintf("/part/%d", i)]...)
	}
	assert.Equal(t, data, joined)
}

func TestRun_ConcurrentFailureSkipsFinalise(t *testing.T) {
	st := newStorage(t)
	st.failPath = "/part/5"
	api := &fakeAPI{storage: st}
	src, _ := testSource(40)

	res, err := New(api, slog.Default(), WithPartSize(4), WithConcurrency(3)).Run(context.Background(), src)

	var perr *PartUploadError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 5, perr.PartNumber)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, api.finaliseCalls)
}

func TestLedger_Complete(t *testing.T) {
	plan := PlanParts(9, 3)
	l := &Ledger{}
	l.Add(model.CompletedPart{PartNumber: 3})
	l.Add(model.CompletedPart{PartNumber: 1})
	assert.False(t, l.Complete(plan))

	l.Add(model.CompletedPart{PartNumber: 2})
	assert.True(t, l.Complete(plan))
	assert.Equal(t, []int{3, 1, 2}, []int{l.Parts()[0].PartNumber, l.Parts()[1].PartNumber, l.Parts()[2].PartNumber})
	assert.Equal(t, 1, sortedParts(l.Parts())[0].PartNumber)
}

func TestPutTimeout(t *testing.T) {
	assert.Equal(t, PutTimeoutBase, putTimeout(mb-1))
	assert.Equal(t, PutTimeoutBase+5*PutTimeoutPerMiB, putTimeout(5*mb))
}
