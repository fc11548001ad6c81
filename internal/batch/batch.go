package batch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/wesleywu/routesock/internal/logger"
	"github.com/wesleywu/routesock/route"
	"github.com/wesleywu/routesock/routing"
)

// Action is the operation applied to every route of a batch.
type Action int

const (
	ActionAdd Action = iota
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Summary is the outcome of one batch.
type Summary struct {
	Total      int
	Duplicates int // dropped before reaching the kernel
	Success    int
	Skipped    int // already present on add, already gone on delete
	Failed     int
	Errors     []error
	Duration   time.Duration
}

// Err joins the failures, or returns nil when there were none.
func (s Summary) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("batch operation failed: %d errors: %w", len(s.Errors), errors.Join(s.Errors...))
}

// Processor runs batches over a fixed set of handles. Each handle serves
// one request at a time, so the pool never runs more tasks than there are
// handles.
type Processor struct {
	handles []routing.Handle
	free    chan routing.Handle
	pool    *ants.Pool
	log     *logger.Logger
}

// New creates a Processor owning handles.
func New(handles []routing.Handle, log *logger.Logger) (*Processor, error) {
	if len(handles) == 0 {
		return nil, errors.New("batch: no handles")
	}
	pool, err := ants.NewPool(len(handles))
	if err != nil {
		return nil, fmt.Errorf("batch: create worker pool: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	free := make(chan routing.Handle, len(handles))
	for _, h := range handles {
		free <- h
	}
	return &Processor{
		handles: handles,
		free:    free,
		pool:    pool,
		log:     log.WithComponent("batch"),
	}, nil
}

// Open opens n handles with open and creates a Processor over them.
func Open(n int, open func() (routing.Handle, error), log *logger.Logger) (*Processor, error) {
	handles := make([]routing.Handle, 0, n)
	for i := 0; i < n; i++ {
		h, err := open()
		if err != nil {
			for _, opened := range handles {
				opened.Close()
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return New(handles, log)
}

// Apply runs action for every distinct route network in routes. Duplicates
// after the first are dropped before anything is sent to the kernel.
func (p *Processor) Apply(action Action, routes []route.Route) Summary {
	start := time.Now()

	set := NewRouteSet()
	duplicates := 0
	for _, r := range routes {
		if set.Contains(r) {
			duplicates++
			continue
		}
		set.Add(r)
	}
	unique := set.Routes()
	if duplicates > 0 {
		p.log.Debug("Dropped duplicate routes", "action", action.String(), "duplicates", duplicates)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary = Summary{Total: set.Len(), Duplicates: duplicates}
	)
	record := func(r route.Route, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			summary.Success++
		case skippable(action, err):
			summary.Skipped++
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Errorf("%s %s: %w", action, r, err))
		}
	}

	for _, r := range unique {
		r := r
		wg.Add(1)
		task := func() {
			defer wg.Done()
			h := <-p.free
			defer func() { p.free <- h }()
			record(r, apply(h, action, r))
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			record(r, err)
		}
	}
	wg.Wait()

	summary.Duration = time.Since(start)
	p.log.BatchOperation(action.String(), summary.Total, summary.Success, summary.Skipped, summary.Failed, summary.Duration.Milliseconds())
	return summary
}

func apply(h routing.Handle, action Action, r route.Route) error {
	switch action {
	case ActionAdd:
		return h.Add(r)
	case ActionDelete:
		return h.Delete(r)
	default:
		return &route.Error{Kind: route.KindInvalid, Op: action.String()}
	}
}

// skippable reports whether err means the table already is in the state
// the action asked for.
func skippable(action Action, err error) bool {
	switch action {
	case ActionAdd:
		return errors.Is(err, route.ErrAlreadyExists)
	case ActionDelete:
		return errors.Is(err, route.ErrNotFound)
	}
	return false
}

// Close releases the worker pool and closes every handle.
func (p *Processor) Close() error {
	p.pool.Release()
	var errs []error
	for _, h := range p.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
