package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ivlev/slides2video/internal/fault"
	"github.com/ivlev/slides2video/internal/logging"
	"github.com/ivlev/slides2video/internal/metrics"
	"github.com/ivlev/slides2video/internal/segment"
)

// Producer renders a segment blob into w. It must write a complete blob or
// return an error; partial output is discarded either way.
type Producer func(ctx context.Context, w io.Writer) error

// Cache coalesces segment production over a blob store. For any key at most
// one producer runs at a time; everyone asking for that key while it runs
// gets the same result or the same failure.
type Cache struct {
	store Store
	group singleflight.Group
	log   *slog.Logger
	met   *metrics.Metrics
}

func New(store Store, log *slog.Logger, met *metrics.Metrics) *Cache {
	return &Cache{store: store, log: logging.Or(log), met: met}
}

// GetOrRender returns an open segment for key, producing it first if the
// store has no blob yet. Waiters canceled mid-flight detach and return their
// context error; the render itself keeps running for the remaining waiters.
func (c *Cache) GetOrRender(ctx context.Context, key string, produce Producer) (*segment.Segment, error) {
	if c.store.Exists(key) {
		path, err := c.store.Get(key)
		if err == nil {
			if seg, err := c.open(path, key); err == nil {
				if c.met != nil {
					c.met.IncCacheHit()
				}
				c.log.Debug("segment cache hit", "key", shortKey(key))
				return seg, nil
			}
			// An unreadable blob falls through to a fresh render.
			c.log.Warn("cached blob unreadable, re-rendering", "key", shortKey(key))
		}
	}
	if c.met != nil {
		c.met.IncCacheMiss()
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A concurrent flight may have finished between the fast path and
		// joining the group.
		if c.store.Exists(key) {
			return c.store.Get(key)
		}
		return c.render(ctx, key, produce)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared && c.met != nil {
			c.met.IncCoalescedWait()
		}
		return c.open(res.Val.(string), key)
	}
}

func (c *Cache) render(ctx context.Context, key string, produce Producer) (string, error) {
	start := time.Now()
	if c.met != nil {
		c.met.RenderStarted()
		defer c.met.RenderFinished()
	}
	c.log.Debug("rendering segment", "key", shortKey(key))

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(produce(ctx, pw))
	}()

	path, err := c.store.Put(key, pr)
	if err != nil {
		pr.CloseWithError(err)
		switch {
		case errors.Is(err, fault.ErrSegmentRender),
			errors.Is(err, fault.ErrImageDecode),
			errors.Is(err, fault.ErrInvalidConfig),
			errors.Is(err, fault.ErrCacheIO),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return "", err
		}
		return "", fault.Wrap(fault.ErrSegmentRender, "cache", shortKey(key), err)
	}

	if c.met != nil {
		c.met.IncSegmentsRendered()
		c.met.ObserveSegmentRender(time.Since(start))
	}
	c.log.Debug("segment rendered", "key", shortKey(key), "elapsed", time.Since(start))
	return path, nil
}

func (c *Cache) open(path, key string) (*segment.Segment, error) {
	seg, err := segment.Open(path)
	if err != nil {
		return nil, err
	}
	seg.Key = key
	return seg, nil
}
