package main

import (
	"context"
	"sync"
	"sync/atomic"
)

// ===============================
// 完成屏障
// ===============================

// Completion 一个批次所有探测结束后的结果
type Completion struct {
	Generation Generation
	Expected   int
	Records    []MeasurementRecord
	Failures   []ProbeFailure
}

// gateRound 单个批次的计数器和结果
type gateRound struct {
	generation Generation
	expected   int64
	observed   atomic.Int64

	mu       sync.Mutex
	records  []MeasurementRecord
	failures []ProbeFailure

	done       chan struct{}
	superseded chan struct{}
	supersede  sync.Once
	result     *Completion
}

func newGateRound(gen Generation, expected int) *gateRound {
	expected = max(expected, 0)
	return &gateRound{
		generation: gen,
		expected:   int64(expected),
		records:    make([]MeasurementRecord, 0, expected),
		done:       make(chan struct{}),
		superseded: make(chan struct{}),
	}
}

// finish 只会被计数恰好到达 expected 的那一次观察调用
func (r *gateRound) finish() *Completion {
	r.mu.Lock()
	c := &Completion{
		Generation: r.generation,
		Expected:   int(r.expected),
		Records:    append([]MeasurementRecord(nil), r.records...),
		Failures:   append([]ProbeFailure(nil), r.failures...),
	}
	r.mu.Unlock()

	r.result = c
	close(r.done)
	return c
}

// CompletionGate 等待当前批次的全部探测结束（成功或失败），每个批次只触发一次完成
type CompletionGate struct {
	current atomic.Pointer[gateRound]
}

// NewCompletionGate 创建屏障
func NewCompletionGate() *CompletionGate {
	return &CompletionGate{}
}

// Open 开启新批次，立即取代之前仍在等待的批次
func (g *CompletionGate) Open(gen Generation, expected int) {
	round := newGateRound(gen, expected)
	if prev := g.current.Swap(round); prev != nil {
		prev.supersede.Do(func() { close(prev.superseded) })
	}
	if expected <= 0 {
		round.finish()
	}
}

// Current 当前批次编号，尚未开启时为 0
func (g *CompletionGate) Current() Generation {
	if r := g.current.Load(); r != nil {
		return r.generation
	}
	return 0
}

// Observe 记录一次探测结束
// 仅当本次观察使计数恰好到达预期值且批次仍为当前批次时返回 (completion, true)
func (g *CompletionGate) Observe(gen Generation, o Outcome) (*Completion, bool) {
	r := g.current.Load()
	if r == nil || r.generation != gen {
		return nil, false
	}
	return g.observe(r, o)
}

// observe 计入一次结果；计数到达时若批次已被取代则不交出结果
func (g *CompletionGate) observe(r *gateRound, o Outcome) (*Completion, bool) {
	r.mu.Lock()
	switch {
	case o.Record != nil:
		r.records = append(r.records, *o.Record)
	case o.Failure != nil:
		r.failures = append(r.failures, *o.Failure)
	}
	r.mu.Unlock()

	if r.observed.Add(1) != r.expected {
		return nil, false
	}

	c := r.finish()
	if g.current.Load() != r {
		return nil, false
	}
	return c, true
}

// Wait 阻塞直到批次完成、被取代或 ctx 结束
func (g *CompletionGate) Wait(ctx context.Context, gen Generation) (*Completion, error) {
	r := g.current.Load()
	if r == nil || r.generation != gen {
		return nil, ErrSuperseded
	}

	select {
	case <-r.done:
		return r.result, nil
	default:
	}

	select {
	case <-r.done:
		return r.result, nil
	case <-r.superseded:
		return nil, ErrSuperseded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
