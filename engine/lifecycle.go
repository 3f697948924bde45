// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/log"
)

var (
	ErrEngineNotReady = errors.New("engine not ready")
	ErrLoadTimeout    = errors.New("engine load timed out")
)

// Status is the lifecycle state of the engine loader.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loader manages the process-wide engine instance. Initialization is
// expensive (CKKS key generation), so it runs at most once at a time: all
// concurrent Load callers share a single in-flight attempt and receive the
// same result. A failed attempt resets the loader, and the next Load starts
// over from scratch.
type Loader struct {
	config Config
	logger log.Logger

	mu      sync.Mutex
	status  Status
	engine  *Engine
	current *loadAttempt
}

// loadAttempt carries the result of one initialization so waiters always see
// the outcome of the attempt they joined, even if a newer one has started.
type loadAttempt struct {
	done   chan struct{}
	engine *Engine
	err    error
}

// NewLoader creates a loader; nothing happens until the first Load.
func NewLoader(config Config, logger log.Logger) *Loader {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultConfig().LoadTimeout
	}
	return &Loader{
		config: config,
		logger: logger,
	}
}

// Load returns the ready engine, starting or joining an initialization as
// needed. The context only abandons this caller's wait; the shared attempt
// keeps running for the others.
func (l *Loader) Load(ctx context.Context) (*Engine, error) {
	l.mu.Lock()
	switch l.status {
	case StatusReady:
		engine := l.engine
		l.mu.Unlock()
		return engine, nil
	case StatusLoading:
		// Join the in-flight attempt.
	default:
		// Uninitialized or failed: a fresh attempt starts from scratch.
		l.status = StatusLoading
		l.current = &loadAttempt{done: make(chan struct{})}
		go l.load(l.current)
	}
	attempt := l.current
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-attempt.done:
	}

	if attempt.err != nil {
		return nil, attempt.err
	}
	return attempt.engine, nil
}

// Engine returns the loaded engine without triggering a load.
func (l *Loader) Engine() (*Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusReady {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotReady, l.status)
	}
	return l.engine, nil
}

// Status returns the loader's current lifecycle state.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Reset drops a ready or failed engine so the next Load reinitializes. An
// in-flight load is left alone.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == StatusLoading {
		return
	}
	l.status = StatusUninitialized
	l.engine = nil
	l.current = nil
}

func (l *Loader) load(attempt *loadAttempt) {
	start := time.Now()
	l.logger.Info("Loading FHE engine", "timeout", l.config.LoadTimeout)

	type result struct {
		engine *Engine
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		engine, err := newEngine(l.config, l.logger)
		resultCh <- result{engine: engine, err: err}
	}()

	timer := time.NewTimer(l.config.LoadTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		attempt.engine, attempt.err = res.engine, res.err
	case <-timer.C:
		// The key generation goroutine finishes on its own; its result is
		// discarded.
		attempt.err = ErrLoadTimeout
	}

	l.mu.Lock()
	if l.current == attempt {
		if attempt.err != nil {
			l.status = StatusFailed
			l.logger.Error("FHE engine load failed",
				"err", attempt.err,
				"elapsed", time.Since(start))
		} else {
			l.status = StatusReady
			l.engine = attempt.engine
			l.logger.Info("FHE engine ready", "elapsed", time.Since(start))
		}
	}
	l.mu.Unlock()

	close(attempt.done)
}
