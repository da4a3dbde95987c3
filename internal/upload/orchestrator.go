package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// Per-call timeouts. A part PUT gets the base timeout plus PutTimeoutPerMiB
// for every MiB in the part.
const (
	MetadataTimeout  = 30 * time.Second
	PutTimeoutBase   = 30 * time.Second
	PutTimeoutPerMiB = time.Second
)

const maxStorageErrorBody = 4096

// API is the backend side of a multipart upload.
// *mediaapi.Authorized implements it.
type API interface {
	Initiate(ctx context.Context, req model.InitiateRequest) (*model.InitiateResponse, error)
	PartURL(ctx context.Context, req model.PartURLRequest) (string, error)
	Finalise(ctx context.Context, req model.FinalizeRequest) (*model.FinalizeResponse, error)
}

// Source is the file being uploaded.
type Source struct {
	Name      string
	MediaType string
	Size      int64
	Reader    io.ReaderAt
}

// Status is the outcome of a Run.
type Status int

const (
	StatusCompleted Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result describes a finished, failed or cancelled Run.
type Result struct {
	Status           Status
	MediaUUID        string
	UploadID         string
	Parts            []model.CompletedPart
	ProcessedURL     string
	ProcessingStatus model.ProcessingStatus
}

// Orchestrator runs the initiate, per-part transfer and finalise phases.
type Orchestrator struct {
	api         API
	httpClient  *http.Client
	logger      *slog.Logger
	partSize    int64
	concurrency int
	progress    ProgressFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPartSize sets the part size. Non-positive values are ignored.
func WithPartSize(n int64) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.partSize = n
		}
	}
}

// WithConcurrency sets how many parts may be in flight at once. The
// default of one transfers parts strictly in order.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithProgress registers a progress listener.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithHTTPClient sets the client used for part PUTs to signed URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		o.httpClient = c
	}
}

// New creates an Orchestrator.
func New(api API, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		api:         api,
		httpClient:  &http.Client{},
		logger:      logger,
		partSize:    DefaultPartSize,
		concurrency: 1,
		progress:    func(Event) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initiate starts a multipart upload on the backend.
func (o *Orchestrator) Initiate(ctx context.Context, name, mediaType string) (*model.InitiateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, MetadataTimeout)
	defer cancel()

	up, err := o.api.Initiate(ctx, model.InitiateRequest{Filename: name, MediaType: mediaType})
	if err != nil {
		return nil, fmt.Errorf("upload: initiate: %w", err)
	}
	return up, nil
}

// RequestPartURL obtains the signed URL for one part.
func (o *Orchestrator) RequestPartURL(ctx context.Context, up model.InitiateResponse, partNumber int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, MetadataTimeout)
	defer cancel()

	return o.api.PartURL(ctx, model.PartURLRequest{
		MediaUUID:  up.MediaUUID,
		UploadID:   up.UploadID,
		PartNumber: partNumber,
	})
}

// UploadPart PUTs the part's byte range to signedURL. A missing ETag in the
// response is tolerated.
func (o *Orchestrator) UploadPart(ctx context.Context, signedURL string, src io.ReaderAt, part Part) (model.CompletedPart, error) {
	if err := ctx.Err(); err != nil {
		return model.CompletedPart{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, putTimeout(part.Size()))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, io.NewSectionReader(src, part.Start, part.Size()))
	if err != nil {
		return model.CompletedPart{}, fmt.Errorf("creating PUT request: %w", err)
	}
	req.ContentLength = part.Size()

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return model.CompletedPart{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxStorageErrorBody))
		return model.CompletedPart{}, &StorageError{Status: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return model.CompletedPart{ETag: resp.Header.Get("ETag"), PartNumber: part.Number}, nil
}

// Finalize completes the upload with parts sorted by part number.
func (o *Orchestrator) Finalize(ctx context.Context, up model.InitiateResponse, parts []model.CompletedPart) (*model.FinalizeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, MetadataTimeout)
	defer cancel()

	out, err := o.api.Finalise(ctx, model.FinalizeRequest{
		MediaUUID: up.MediaUUID,
		UploadID:  up.UploadID,
		Parts:     sortedParts(parts),
	})
	if err != nil {
		return nil, fmt.Errorf("upload: finalise: %w", err)
	}
	return out, nil
}

// Run uploads src end to end. On cancellation it returns a Result with
// StatusCancelled and an error wrapping ErrCancelled. Finalise is only
// called once every part is acknowledged.
func (o *Orchestrator) Run(ctx context.Context, src Source) (*Result, error) {
	plan := PlanParts(src.Size, o.partSize)
	if len(plan) == 0 {
		return o.fail(&Result{}, ErrEmptySource)
	}

	if ctx.Err() != nil {
		return o.cancelled(ctx, &Result{})
	}

	o.progress(Event{Phase: PhaseInitiating})
	o.logger.Info("initiating upload",
		slog.String("name", src.Name),
		slog.Int64("size", src.Size),
		slog.Int("parts", len(plan)),
	)

	up, err := o.Initiate(ctx, src.Name, src.MediaType)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(ctx, &Result{})
		}
		return o.fail(&Result{}, err)
	}
	res := &Result{MediaUUID: up.MediaUUID, UploadID: up.UploadID}

	ledger := &Ledger{}
	err = o.transferParts(ctx, *up, src, plan, ledger)
	res.Parts = sortedParts(ledger.Parts())
	if ctx.Err() != nil {
		return o.cancelled(ctx, res)
	}
	if err != nil {
		return o.fail(res, err)
	}
	if !ledger.Complete(plan) {
		return o.fail(res, ErrIncomplete)
	}

	o.progress(Event{Phase: PhaseFinalising})
	out, err := o.Finalize(ctx, *up, ledger.Parts())
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(ctx, res)
		}
		return o.fail(res, err)
	}

	res.Status = StatusCompleted
	res.ProcessedURL = out.ProcessedURL
	res.ProcessingStatus = out.Status
	o.progress(Event{Phase: PhaseCompleted, Status: out.Status})
	o.logger.Info("upload completed",
		slog.String("media_uuid", up.MediaUUID),
		slog.String("processing_status", out.Status.String()),
	)
	return res, nil
}

// transferParts requests a URL and PUTs each part, at most o.concurrency at
// a time. The first failure stops the remaining parts.
func (o *Orchestrator) transferParts(ctx context.Context, up model.InitiateResponse, src Source, plan []Part, ledger *Ledger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, part := range plan {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			acked, err := o.transferPart(gctx, up, src.Reader, part, len(plan))
			if err != nil {
				return &PartUploadError{PartNumber: part.Number, Err: err}
			}
			ledger.Add(acked)
			return nil
		})
	}

	return g.Wait()
}

func (o *Orchestrator) transferPart(ctx context.Context, up model.InitiateResponse, src io.ReaderAt, part Part, total int) (model.CompletedPart, error) {
	o.progress(Event{Phase: PhaseRequestingURL, PartNumber: part.Number, TotalParts: total})
	signedURL, err := o.RequestPartURL(ctx, up, part.Number)
	if err != nil {
		return model.CompletedPart{}, fmt.Errorf("requesting URL: %w", err)
	}

	o.progress(Event{Phase: PhaseUploadingPart, PartNumber: part.Number, TotalParts: total})
	acked, err := o.UploadPart(ctx, signedURL, src, part)
	if err != nil {
		return model.CompletedPart{}, fmt.Errorf("uploading: %w", err)
	}

	o.logger.Debug("part uploaded",
		slog.Int("part", part.Number),
		slog.Int64("bytes", part.Size()),
		slog.Bool("etag", acked.ETag != ""),
	)
	return acked, nil
}

func (o *Orchestrator) cancelled(ctx context.Context, res *Result) (*Result, error) {
	res.Status = StatusCancelled
	o.progress(Event{Phase: PhaseCancelled})
	o.logger.Info("upload cancelled", slog.String("media_uuid", res.MediaUUID))
	return res, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func (o *Orchestrator) fail(res *Result, err error) (*Result, error) {
	res.Status = StatusFailed
	o.progress(Event{Phase: PhaseFailed, Err: err})

	var perr *PartUploadError
	if errors.As(err, &perr) {
		o.logger.Warn("upload failed", slog.Int("part", perr.PartNumber), slog.String("error", err.Error()))
	} else {
		o.logger.Warn("upload failed", slog.String("error", err.Error()))
	}
	return res, err
}

func putTimeout(size int64) time.Duration {
	return PutTimeoutBase + time.Duration(size/(1024*1024))*PutTimeoutPerMiB
}
