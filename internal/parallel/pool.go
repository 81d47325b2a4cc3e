// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel runs independent driver jobs, such as compiling the
// stages of a program, on a small pool of goroutines.
package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a pool of goroutines with per-worker queues. Idle workers steal
// from other queues.
//
// Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case job := <-own:
			job()
		default:
			if job := p.steal(id); job != nil {
				job()
				continue
			}
			select {
			case <-p.done:
				drain(own)
				return
			case job := <-own:
				job()
			}
		}
	}
}

func drain(q chan func()) {
	for {
		select {
		case job := <-q:
			job()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case job := <-p.queues[i]:
			return job
		default:
		}
	}
	return nil
}

// Run executes jobs and waits for all of them. The returned error joins
// the errors of the failing jobs in job order. On a closed pool the jobs
// run on the calling goroutine.
func (p *Pool) Run(jobs []func() error) error {
	errs := make([]error, len(jobs))
	if !p.running.Load() {
		for i, job := range jobs {
			errs[i] = job()
		}
		return errors.Join(errs...)
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		run := func() {
			defer wg.Done()
			errs[i] = job()
		}
		select {
		case p.queues[i%p.workers] <- run:
		case <-p.done:
			run()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close stops the pool after queued jobs finish. It is safe to call more
// than once.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }
