// Package dispatch runs work on named worker pools, so that blocking
// operations can be isolated from the pool that runs latency-sensitive
// stream stages.
//
// A Registry is built once from a Config, and resolves pool names to pools.
// Every registry has a primary pool named DefaultPool, on which ordinary
// work runs. Blocking work is delegated to another pool with RunIsolated,
// which returns a future immediately:
//
//	reg, err := dispatch.NewRegistry(dispatch.Config{
//	   Pools: map[string]dispatch.PoolConfig{"blocking": {Workers: 16}},
//	}, nil)
//	...
//	pool, err := reg.Lookup("blocking")
//	...
//	f := dispatch.RunIsolated(pool, func(ctx context.Context) (int, error) {
//	   return slowLookup(ctx, key)
//	})
package dispatch

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/creachadair/streams"
	"github.com/creachadair/streams/code"
	"github.com/creachadair/streams/metrics"
	"github.com/eapache/queue"
	"golang.org/x/sync/semaphore"
)

// DefaultPool is the name of the primary pool of every Registry.
const DefaultPool = "default"

// PoolConfig configures one worker pool.
type PoolConfig struct {
	// The maximum number of tasks the pool runs concurrently. It must be
	// positive, except for the primary pool, where a value less than 1 uses
	// runtime.NumCPU().
	Workers int
}

// Config describes the worker pools of a Registry.
type Config struct {
	// Pools maps pool names to their configurations. An entry for
	// DefaultPool configures the primary pool.
	Pools map[string]PoolConfig
}

// Options control the behaviour of a Registry.
// A nil *Options provides sensible defaults.
type Options struct {
	// If not nil, send debug logs here.
	Logger *log.Logger
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return func(msg string, args ...any) { o.Logger.Output(2, fmt.Sprintf(msg, args...)) }
}

// A Registry resolves pool names to worker pools.
type Registry struct {
	pools   map[string]*Pool
	primary *Pool
}

// NewRegistry constructs a Registry from cfg. Invalid configurations are
// reported with code ConfigurationError, before any work can be submitted.
func NewRegistry(cfg Config, opts *Options) (*Registry, error) {
	logf := opts.logFunc()
	r := &Registry{pools: make(map[string]*Pool)}
	for name, pc := range cfg.Pools {
		if name == "" {
			return nil, streams.Errorf(code.ConfigurationError, "empty worker pool name")
		}
		if pc.Workers < 1 && name != DefaultPool {
			return nil, streams.Errorf(code.ConfigurationError, "pool %q: workers must be positive (got %d)", name, pc.Workers)
		}
	}
	primary := cfg.Pools[DefaultPool]
	if primary.Workers < 1 {
		primary.Workers = runtime.NumCPU()
	}
	r.primary = newPool(DefaultPool, primary.Workers, true, logf)
	r.pools[DefaultPool] = r.primary
	for name, pc := range cfg.Pools {
		if name != DefaultPool {
			r.pools[name] = newPool(name, pc.Workers, false, logf)
		}
	}
	return r, nil
}

// Lookup returns the pool with the given name. It reports an error with code
// ConfigurationError if no such pool is configured.
func (r *Registry) Lookup(name string) (*Pool, error) {
	p, ok := r.pools[name]
	if !ok {
		return nil, streams.Errorf(code.ConfigurationError, "no worker pool named %q", name)
	}
	return p, nil
}

// MustLookup is like Lookup, but panics if the pool is not configured.
func (r *Registry) MustLookup(name string) *Pool {
	p, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the primary pool of r.
func (r *Registry) Default() *Pool { return r.primary }

// Names returns the names of the pools of r in lexicographic order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops all the pools of r from accepting work, cancels the contexts
// of running tasks, and waits for them to return.
func (r *Registry) Close() error {
	for _, p := range r.pools {
		p.close()
	}
	for _, p := range r.pools {
		p.wg.Wait()
	}
	return nil
}

// ErrPoolClosed is reported for work submitted to a pool that has closed.
var ErrPoolClosed = &streams.Error{Code: code.Closed, Message: "worker pool is closed"}

// A Pool runs tasks on goroutines, at most Workers at a time. Tasks start
// in the order they were submitted.
type Pool struct {
	name    string
	workers int
	primary bool
	sem     *semaphore.Weighted
	ctx     context.Context // ends when the pool closes
	cancel  context.CancelFunc
	stats   *metrics.M
	log     func(string, ...any)
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending *queue.Queue // *task values waiting for a worker
	closed  bool
}

// A task is a unit of work accepted by a pool.
type task struct {
	run   func(context.Context)
	abort func(error) // called instead of run if the pool closes first
}

func newPool(name string, workers int, primary bool, logf func(string, ...any)) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:    name,
		workers: workers,
		primary: primary,
		sem:     semaphore.NewWeighted(int64(workers)),
		cancel:  cancel,
		stats:   metrics.New(),
		log:     logf,
		pending: queue.New(),
	}
	p.ctx = context.WithValue(ctx, poolKey{}, p)
	return p
}

// Name reports the configured name of p.
func (p *Pool) Name() string { return p.name }

// Workers reports the maximum number of tasks p runs concurrently.
func (p *Pool) Workers() int { return p.workers }

// Stats reports a snapshot of the task metrics of p.
func (p *Pool) Stats() metrics.Snapshot { return p.stats.Snapshot() }

// Submit schedules task to run on p and returns without waiting for it to
// start. The context passed to task ends when the pool closes. Submit
// reports ErrPoolClosed if p has closed; a task accepted before the pool
// closes but not yet started when it does is discarded.
func (p *Pool) Submit(run func(context.Context)) error {
	return p.submit(run, func(error) {})
}

// submit queues run on p. If run cannot start because the pool closed,
// abort is called instead.
func (p *Pool) submit(run func(context.Context), abort func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.stats.Count("tasks.submitted", 1)
	p.pending.Add(&task{run: run, abort: abort})
	p.startLocked()
	return nil
}

// startLocked starts queued tasks from the head of the queue while workers
// are free. The caller must hold p.mu.
func (p *Pool) startLocked() {
	for !p.closed && p.pending.Length() != 0 && p.sem.TryAcquire(1) {
		go p.exec(p.pending.Remove().(*task))
	}
}

// exec runs t on a worker slot already acquired for it.
func (p *Pool) exec(t *task) {
	defer p.wg.Done()

	p.stats.Add("tasks.active", 1)
	t.run(p.ctx)
	p.stats.Add("tasks.active", -1)
	p.stats.Count("tasks.completed", 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sem.Release(1)
	p.startLocked()
}

func (p *Pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	var dropped []*task
	for p.pending.Length() != 0 {
		dropped = append(dropped, p.pending.Remove().(*task))
	}
	p.mu.Unlock()

	for _, t := range dropped {
		p.stats.Count("tasks.aborted", 1)
		t.abort(ErrPoolClosed)
		p.wg.Done()
	}
	p.log("Closed worker pool %q (%d queued tasks dropped)", p.name, len(dropped))
}

type poolKey struct{}

// PoolFromContext returns the pool running the task whose context is ctx, or
// nil if ctx does not belong to a pool task.
func PoolFromContext(ctx context.Context) *Pool {
	if v := ctx.Value(poolKey{}); v != nil {
		return v.(*Pool)
	}
	return nil
}
