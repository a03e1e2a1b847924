package dispatch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"dispatchdesk/internal/backend"
	"dispatchdesk/internal/metrics"
	"dispatchdesk/internal/model"
	"dispatchdesk/internal/transform"
)

type CommitBackend interface {
	DispatchJob(ctx context.Context, jobID string) (backend.Ack, error)
	DispatchJobs(ctx context.Context, jobIDs []string) ([]backend.DispatchResult, error)
	ListJobs(ctx context.Context, q backend.JobQuery) (model.Paged[model.RawJob], error)
	GetJob(ctx context.Context, jobID string) (model.RawJob, error)
}

// Ack is the commit result for one job.
type Ack struct {
	JobID   string `json:"jobId"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Observer is told about every commit attempt after it completes.
type Observer interface {
	JobsDispatched(ctx context.Context, acks []Ack)
}

type Mode string

const (
	ModeBatch Mode = "batch"
	ModeEach  Mode = "each"
)

type CommitterOptions struct {
	Mode        Mode
	Concurrency int
	PageSize    int
	Observer    Observer
	Logger      *slog.Logger
}

// Committer dispatches draft jobs and re-reads drafts from the backend.
type Committer struct {
	be   CommitBackend
	tr   Transformer
	opts CommitterOptions
	log  *slog.Logger
}

func NewCommitter(be CommitBackend, tr Transformer, opts CommitterOptions) *Committer {
	if opts.Mode == "" {
		opts.Mode = ModeBatch
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = backend.DefaultPageSize
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Committer{be: be, tr: tr, opts: opts, log: l}
}

// Dispatch commits a single job.
func (c *Committer) Dispatch(ctx context.Context, jobID string) Ack {
	ack := c.dispatchOne(ctx, jobID)
	c.finish(ctx, []Ack{ack})
	return ack
}

// DispatchAll commits jobIDs and returns one Ack per id in input order. A
// failure of one job never hides the result of another.
func (c *Committer) DispatchAll(ctx context.Context, jobIDs []string) []Ack {
	if len(jobIDs) == 0 {
		return []Ack{}
	}
	var acks []Ack
	if c.opts.Mode == ModeEach {
		acks = c.dispatchEach(ctx, jobIDs)
	} else {
		acks = c.dispatchBatch(ctx, jobIDs)
	}
	c.finish(ctx, acks)
	return acks
}

func (c *Committer) dispatchOne(ctx context.Context, jobID string) Ack {
	res, err := c.be.DispatchJob(ctx, jobID)
	if err != nil {
		return Ack{JobID: jobID, Message: UserMessage(err)}
	}
	return Ack{JobID: jobID, Success: true, Message: res.Message}
}

func (c *Committer) dispatchEach(ctx context.Context, jobIDs []string) []Ack {
	acks := make([]Ack, len(jobIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, id := range jobIDs {
		g.Go(func() error {
			acks[i] = c.dispatchOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return acks
}

func (c *Committer) dispatchBatch(ctx context.Context, jobIDs []string) []Ack {
	results, err := c.be.DispatchJobs(ctx, jobIDs)
	acks := make([]Ack, len(jobIDs))
	if err != nil {
		msg := UserMessage(err)
		for i, id := range jobIDs {
			acks[i] = Ack{JobID: id, Message: msg}
		}
		return acks
	}
	byID := make(map[string]backend.DispatchResult, len(results))
	for _, r := range results {
		byID[r.JobID] = r
	}
	for i, id := range jobIDs {
		r, ok := byID[id]
		if !ok {
			acks[i] = Ack{JobID: id, Message: "no result returned for this job"}
			continue
		}
		acks[i] = Ack{JobID: id, Success: r.Success, Message: r.Message}
	}
	return acks
}

func (c *Committer) finish(ctx context.Context, acks []Ack) {
	for _, a := range acks {
		status := "dispatched"
		if !a.Success {
			status = "failed"
			c.log.Warn("job dispatch failed", "jobId", a.JobID, "message", a.Message)
		}
		metrics.DispatchOutcomes.WithLabelValues(status).Inc()
	}
	if c.opts.Observer != nil {
		c.opts.Observer.JobsDispatched(ctx, acks)
	}
}

// RefetchDrafts reads the current draft state of jobIDs and normalizes it.
func (c *Committer) RefetchDrafts(ctx context.Context, jobIDs []string) (transform.Result, error) {
	if len(jobIDs) == 0 {
		return transform.Result{Value: []model.Job{}, UnassignedShipments: []model.UnassignedShipment{}}, nil
	}
	all := model.Paged[model.RawJob]{Value: []model.RawJob{}}
	for n := 1; ; n++ {
		pg, err := c.be.ListJobs(ctx, backend.JobQuery{
			JobIDs: jobIDs, Status: model.JobDraft, Page: backend.Page{Number: n, Size: c.opts.PageSize},
		})
		if err != nil {
			return transform.Result{}, err
		}
		if pg.Value == nil {
			// hand the malformed page to the transform so it reports it
			return c.tr.Transform(ctx, transform.FromRefetched(&pg))
		}
		all.Value = append(all.Value, pg.Value...)
		all.Count = pg.Count
		if len(pg.Value) == 0 || len(all.Value) >= pg.Count {
			break
		}
	}
	return c.tr.Transform(ctx, transform.FromRefetched(&all))
}

// LoadJob reads one existing job for the edit flow.
func (c *Committer) LoadJob(ctx context.Context, jobID string) (transform.Result, error) {
	raw, err := c.be.GetJob(ctx, jobID)
	if err != nil {
		return transform.Result{}, err
	}
	return c.tr.Transform(ctx, transform.FromJob(&raw))
}
