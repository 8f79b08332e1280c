// Package parallel provides the fork-join tiling substrate shared by every convolution strategy.
package parallel

import (
	"os"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EnvNumThreads overrides the worker count of the default pool.
const EnvNumThreads = "CONVCORE_NUM_THREADS"

// Config controls parallel execution behavior.
type Config struct {
	NumWorkers   int // Number of worker goroutines to use.
	MinChunkSize int // Minimum items per goroutine for For.
}

// DefaultConfig returns sensible defaults based on CPU count and the environment.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   envInt(EnvNumThreads, runtime.NumCPU()),
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// Range is a half-open coordinate range [Start, End) walked with Step.
type Range struct {
	Start, End, Step int
}

// Span is shorthand for Range{start, end, 1}.
func Span(start, end int) Range {
	return Range{Start: start, End: end, Step: 1}
}

// Count returns the number of coordinates in the range.
func (r Range) Count() int {
	if r.End <= r.Start {
		return 0
	}
	step := max(r.Step, 1)
	return (r.End - r.Start + step - 1) / step
}

// sub returns the tile covering iterations [from, from+n) of r.
func (r Range) sub(from, n int) Range {
	step := max(r.Step, 1)
	start := r.Start + from*step
	return Range{Start: start, End: min(start+n*step, r.End), Step: step}
}

// Pool is a fixed-size set of workers. Parallel regions are synchronous:
// the caller blocks until every tile has finished. There is no cancellation;
// a panic inside a tile brings the process down.
type Pool struct {
	cfg Config
}

// NewPool creates a pool with the given configuration.
// A non-positive worker count means one worker.
func NewPool(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 1
	}
	return &Pool{cfg: cfg}
}

// WithWorkers creates a pool with n workers and default chunking.
func WithWorkers(n int) *Pool {
	cfg := DefaultConfig()
	cfg.NumWorkers = n
	return NewPool(cfg)
}

var defaultPool = sync.OnceValue(func() *Pool {
	return NewPool(DefaultConfig())
})

// Default returns the process-wide pool.
func Default() *Pool {
	return defaultPool()
}

// Workers returns the worker count.
func (p *Pool) Workers() int {
	return p.cfg.NumWorkers
}

// run executes the tiles, inline for a single worker or a single tile.
func (p *Pool) run(tiles []func()) {
	if p.cfg.NumWorkers == 1 || len(tiles) == 1 {
		for _, tile := range tiles {
			tile()
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(p.cfg.NumWorkers)
	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			tile()
			return nil
		})
	}
	_ = g.Wait() // tiles never return errors
}

// For executes f over contiguous chunks of [0, n).
// Falls back to a single inline chunk if n is below the minimum chunk size.
func (p *Pool) For(n int, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if p.cfg.NumWorkers == 1 || n < p.cfg.MinChunkSize {
		f(0, n)
		return
	}
	chunkSize := max((n+p.cfg.NumWorkers-1)/p.cfg.NumWorkers, p.cfg.MinChunkSize)
	tiles := make([]func(), 0, (n+chunkSize-1)/chunkSize)
	for start := 0; start < n; start += chunkSize {
		start := start
		end := min(start+chunkSize, n)
		tiles = append(tiles, func() { f(start, end) })
	}
	p.run(tiles)
}

// Compute1D partitions r0 into tiles of tile0 iterations and calls fn once per tile.
// A zero tile size picks one tile per worker.
func (p *Pool) Compute1D(fn func(r0 Range), r0 Range, tile0 int) {
	n0 := r0.Count()
	if n0 == 0 {
		return
	}
	if tile0 <= 0 {
		tile0 = ceilDiv(n0, p.cfg.NumWorkers)
	}
	tiles := make([]func(), 0, ceilDiv(n0, tile0))
	for i := 0; i < n0; i += tile0 {
		t0 := r0.sub(i, tile0)
		tiles = append(tiles, func() { fn(t0) })
	}
	p.run(tiles)
}

// Compute2D partitions r0 × r1 into disjoint tiles and calls fn once per tile.
// Zero tile sizes split the outer range across workers and, when it is too
// short to feed every worker, the inner range as well.
func (p *Pool) Compute2D(fn func(r0, r1 Range), r0, r1 Range, tile0, tile1 int) {
	n0, n1 := r0.Count(), r1.Count()
	if n0 == 0 || n1 == 0 {
		return
	}
	if tile0 <= 0 || tile1 <= 0 {
		tile0, tile1 = p.autoTile2(n0, n1)
	}
	tiles := make([]func(), 0, ceilDiv(n0, tile0)*ceilDiv(n1, tile1))
	for i := 0; i < n0; i += tile0 {
		for j := 0; j < n1; j += tile1 {
			t0, t1 := r0.sub(i, tile0), r1.sub(j, tile1)
			tiles = append(tiles, func() { fn(t0, t1) })
		}
	}
	p.run(tiles)
}

// Compute3D partitions r0 × r1 × r2 into disjoint tiles and calls fn once per tile.
func (p *Pool) Compute3D(fn func(r0, r1, r2 Range), r0, r1, r2 Range, tile0, tile1, tile2 int) {
	n0, n1, n2 := r0.Count(), r1.Count(), r2.Count()
	if n0 == 0 || n1 == 0 || n2 == 0 {
		return
	}
	if tile0 <= 0 || tile1 <= 0 || tile2 <= 0 {
		tile0, tile1 = p.autoTile2(n0, n1)
		tile2 = n2
		if tile0 == 1 && tile1 == 1 && n0*n1 < p.cfg.NumWorkers {
			tile2 = max(1, ceilDiv(n2*n0*n1, p.cfg.NumWorkers))
		}
	}
	tiles := make([]func(), 0, ceilDiv(n0, tile0)*ceilDiv(n1, tile1)*ceilDiv(n2, tile2))
	for i := 0; i < n0; i += tile0 {
		for j := 0; j < n1; j += tile1 {
			for k := 0; k < n2; k += tile2 {
				t0, t1, t2 := r0.sub(i, tile0), r1.sub(j, tile1), r2.sub(k, tile2)
				tiles = append(tiles, func() { fn(t0, t1, t2) })
			}
		}
	}
	p.run(tiles)
}

func (p *Pool) autoTile2(n0, n1 int) (int, int) {
	w := p.cfg.NumWorkers
	if n0 >= w {
		return ceilDiv(n0, w), n1
	}
	// Each outer index gets ceil(w/n0) workers along the inner range.
	return 1, max(1, ceilDiv(n1, ceilDiv(w, n0)))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
