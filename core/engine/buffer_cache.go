package engine

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/singleflight"

	"Soundscape/core/audio"
	"Soundscape/logger"
)

// Loader produces a decoded buffer for a sound path.
type Loader interface {
	Load(ctx context.Context, path string) (*audio.Buffer, error)
}

type LoaderFunc func(ctx context.Context, path string) (*audio.Buffer, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (*audio.Buffer, error) {
	return f(ctx, path)
}

// Fetcher returns the encoded bytes of a sound file.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// SourceLoader fetches a file and decodes it at the output rate.
func SourceLoader(f Fetcher, rate beep.SampleRate) Loader {
	return LoaderFunc(func(ctx context.Context, path string) (*audio.Buffer, error) {
		data, err := f.Fetch(ctx, path)
		if err != nil {
			return nil, err
		}
		return audio.Decode(path, data, rate)
	})
}

const defaultLoadTimeout = 2 * time.Minute

// BufferCache memoizes decoded buffers by sound path. Concurrent loads of
// the same path share one fetch and decode. Failures are never cached.
type BufferCache struct {
	loader  Loader
	timeout time.Duration

	mu      sync.RWMutex
	buffers map[string]*audio.Buffer
	gens    map[string]uint64 // bumped by Invalidate
	group   singleflight.Group
}

func NewBufferCache(loader Loader) *BufferCache {
	return &BufferCache{
		loader:  loader,
		timeout: defaultLoadTimeout,
		buffers: make(map[string]*audio.Buffer),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached buffer without loading.
func (c *BufferCache) Get(path string) (*audio.Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.buffers[path]
	return b, ok
}

// Put stores a buffer that was decoded elsewhere.
func (c *BufferCache) Put(path string, b *audio.Buffer) {
	c.mu.Lock()
	c.buffers[path] = b
	c.mu.Unlock()
}

// Load returns the buffer for path, loading it on a miss. ctx only bounds
// this caller's wait; a shared load keeps going for the other waiters.
func (c *BufferCache) Load(ctx context.Context, path string) (*audio.Buffer, error) {
	if b, ok := c.Get(path); ok {
		return b, nil
	}

	ch := c.group.DoChan(path, func() (interface{}, error) {
		if b, ok := c.Get(path); ok {
			return b, nil
		}
		c.mu.RLock()
		gen := c.gens[path]
		c.mu.RUnlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		start := time.Now()
		b, err := c.loader.Load(loadCtx, path)
		if err != nil {
			logger.Warn("sound load failed", logger.Path(path), logger.ErrorField(err))
			return nil, err
		}
		if !c.putIfCurrent(path, gen, b) {
			logger.Debug("sound changed while loading, not cached", logger.Path(path))
			return b, nil
		}
		logger.Debug("sound loaded",
			logger.Path(path),
			logger.Duration("length", b.Duration()),
			logger.Duration("took", time.Since(start)))
		return b, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*audio.Buffer), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// putIfCurrent stores b unless path was invalidated since gen was read.
func (c *BufferCache) putIfCurrent(path string, gen uint64, b *audio.Buffer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[path] != gen {
		return false
	}
	c.buffers[path] = b
	return true
}

// Invalidate evicts path so the next Load reads it again. A load already
// in flight for path still answers its waiters but is not cached.
func (c *BufferCache) Invalidate(path string) {
	c.mu.Lock()
	_, had := c.buffers[path]
	delete(c.buffers, path)
	c.gens[path]++
	c.mu.Unlock()
	c.group.Forget(path)
	if had {
		logger.Info("sound evicted from cache", logger.Path(path))
	}
}

func (c *BufferCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buffers)
}
