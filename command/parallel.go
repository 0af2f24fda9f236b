// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelList is a set of lists recorded concurrently, one goroutine per
// list, and submitted in index order.
type ParallelList struct {
	queue *Queue
	name  string
	lists []*List
}

// NewParallelList creates n child lists of q.
func (q *Queue) NewParallelList(name string, n int) (*ParallelList, error) {
	if n <= 0 {
		return nil, fmt.Errorf("command: parallel list %q needs at least one child, got %d", name, n)
	}
	p := &ParallelList{queue: q, name: name, lists: make([]*List, 0, n)}
	for i := 0; i < n; i++ {
		l, err := q.NewList(fmt.Sprintf("%s[%d]", name, i))
		if err != nil {
			p.Discard()
			return nil, err
		}
		p.lists = append(p.lists, l)
	}
	return p, nil
}

// Lists returns the children in submission order.
func (p *ParallelList) Lists() []*List { return append([]*List(nil), p.lists...) }

// Len returns the number of children.
func (p *ParallelList) Len() int { return len(p.lists) }

// Record calls fn for every child concurrently, at most GOMAXPROCS at a
// time. The first error cancels ctx for the other recorders and is
// returned.
func (p *ParallelList) Record(ctx context.Context, fn func(ctx context.Context, index int, l *List) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, l := range p.lists {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, i, l); err != nil {
				return fmt.Errorf("command: %q: %w", l.name, err)
			}
			return l.Err()
		})
	}
	return g.Wait()
}

// Stats sums the statistics of every child.
func (p *ParallelList) Stats() ListStats {
	var s ListStats
	for _, l := range p.lists {
		ls := l.Stats()
		s.Barriers += ls.Barriers
		s.BindGroups += ls.BindGroups
		s.SkippedGroups += ls.SkippedGroups
		s.Draws += ls.Draws
		s.Dispatches += ls.Dispatches
		s.Bindings += ls.Bindings
	}
	return s
}

// Submit submits every child in index order in one submission.
func (p *ParallelList) Submit(ctx context.Context) (uint64, error) {
	return p.queue.Submit(ctx, p.lists...)
}

// Discard drops every child that was not submitted.
func (p *ParallelList) Discard() {
	for _, l := range p.lists {
		l.Discard()
	}
}
