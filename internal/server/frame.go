package server

import (
	"context"
	"sync"
	"time"
)

type frameTicker interface {
	tickFrame(delta time.Duration)
}

type tickerFactory func(time.Duration) (<-chan time.Time, func())

type timeSource func() time.Time

// frameEngine drives the frame loop at a fixed rate from its own goroutine.
type frameEngine struct {
	target    frameTicker
	tick      time.Duration
	wg        sync.WaitGroup
	newTicker tickerFactory
	now       timeSource
}

func defaultTickerFactory() tickerFactory {
	return func(d time.Duration) (<-chan time.Time, func()) {
		ticker := time.NewTicker(d)
		return ticker.C, ticker.Stop
	}
}

func newFrameEngine(target frameTicker, tick time.Duration) *frameEngine {
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	return &frameEngine{
		target:    target,
		tick:      tick,
		newTicker: defaultTickerFactory(),
		now:       time.Now,
	}
}

func (e *frameEngine) Start(ctx context.Context) {
	if e == nil || e.target == nil {
		return
	}
	e.wg.Add(1)
	go e.run(ctx)
}

func (e *frameEngine) run(ctx context.Context) {
	defer e.wg.Done()
	if e.newTicker == nil {
		e.newTicker = defaultTickerFactory()
	}
	if e.now == nil {
		e.now = time.Now
	}

	tickerC, stop := e.newTicker(e.tick)
	defer stop()

	last := e.now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tickerC:
			delta := now.Sub(last)
			// A stalled frame must not teleport every observer.
			if delta <= 0 || delta > 10*e.tick {
				delta = e.tick
			}
			last = now
			e.target.tickFrame(delta)
		}
	}
}

func (e *frameEngine) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}
