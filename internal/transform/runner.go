package transform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dispatchdesk/internal/metrics"
)

// Reply is the message a worker posts back for one submitted source.
type Reply struct {
	Token   uint64 `json:"token"`
	Success bool   `json:"success"`
	Data    Result `json:"data"`
	Err     error  `json:"-"`
}

type request struct {
	token uint64
	src   Source
	out   chan Reply
}

// Runner executes Normalize on a fixed set of background goroutines. Callers
// post a source and receive the reply on a one-shot channel.
type Runner struct {
	in      chan request
	quit    chan struct{}
	wg      sync.WaitGroup
	seq     atomic.Uint64
	once    sync.Once
	convert func(Source) (Result, error)
}

func NewRunner(workers int) *Runner {
	return newRunner(workers, Normalize)
}

func newRunner(workers int, fn func(Source) (Result, error)) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{in: make(chan request), quit: make(chan struct{}), convert: fn}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.loop()
	}
	return r
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case req := <-r.in:
			req.out <- r.run(req)
		}
	}
}

func (r *Runner) run(req request) (rep Reply) {
	rep.Token = req.token
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			rep = Reply{Token: req.token, Err: fmt.Errorf("transform: %s source panicked: %v", req.src.Kind, p)}
		}
		outcome := "ok"
		if !rep.Success {
			outcome = "error"
		}
		metrics.TransformDuration.WithLabelValues(req.src.Kind.String(), outcome).Observe(time.Since(start).Seconds())
	}()
	data, err := r.convert(req.src)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Success = true
	rep.Data = data
	return rep
}

// Submit posts src to a worker. The returned token increases with every call
// so callers can drop replies older than the latest one they care about.
func (r *Runner) Submit(ctx context.Context, src Source) (uint64, <-chan Reply, error) {
	req := request{token: r.seq.Add(1), src: src, out: make(chan Reply, 1)}
	select {
	case <-r.quit:
		return 0, nil, ErrRunnerClosed
	default:
	}
	select {
	case r.in <- req:
		return req.token, req.out, nil
	case <-r.quit:
		return 0, nil, ErrRunnerClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Transform submits src and waits for its reply.
func (r *Runner) Transform(ctx context.Context, src Source) (Result, error) {
	_, ch, err := r.Submit(ctx, src)
	if err != nil {
		return Result{}, err
	}
	select {
	case rep := <-ch:
		if !rep.Success {
			return Result{}, rep.Err
		}
		return rep.Data, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.quit:
		return Result{}, ErrRunnerClosed
	}
}

// Close stops the workers. Sources still queued are dropped.
func (r *Runner) Close() {
	r.once.Do(func() {
		close(r.quit)
		r.wg.Wait()
	})
}
