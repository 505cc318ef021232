package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ===============================
// 测试会话
// ===============================

// Session 以批次编号管理测试：新批次开启时旧批次的结果全部作废
type Session struct {
	baseURL     string
	sizes       []int
	formats     []string
	concurrency int

	prober     *Prober
	aggregator Aggregator
	gate       *CompletionGate
	logger     *Logger

	generation atomic.Uint64
	latest     atomic.Pointer[Report]

	mu          sync.Mutex
	subscribers map[int]chan *Report
	nextSub     int
}

// SessionOptions 会话参数
type SessionOptions struct {
	BaseURL     string
	Sizes       []int
	Formats     []string
	Concurrency int
	Aggregator  Aggregator
}

// NewSession 创建会话
func NewSession(opts SessionOptions, prober *Prober, logger *Logger) *Session {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if len(opts.Sizes) == 0 {
		opts.Sizes = DefaultSizes
	}
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	return &Session{
		baseURL:     opts.BaseURL,
		sizes:       opts.Sizes,
		formats:     opts.Formats,
		concurrency: opts.Concurrency,
		prober:      prober,
		aggregator:  opts.Aggregator,
		gate:        NewCompletionGate(),
		logger:      logger,
		subscribers: make(map[int]chan *Report),
	}
}

// Start 为文件名开启新批次并异步执行所有探测，返回批次编号
// 正在进行的旧批次会被立即取代，其后续结果一律丢弃
func (s *Session) Start(ctx context.Context, filename string) (Generation, error) {
	catalog, err := BuildCatalog(s.baseURL, filename, s.sizes, s.formats)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	gen := Generation(s.generation.Add(1))
	s.gate.Open(gen, len(catalog))
	s.mu.Unlock()

	s.logger.Info("批次 #%d: %s, 共 %d 个变体", gen, filename, len(catalog))
	go s.dispatch(ctx, gen, filename, catalog, time.Now())
	return gen, nil
}

// Current 当前批次编号
func (s *Session) Current() Generation {
	return Generation(s.generation.Load())
}

func (s *Session) dispatch(ctx context.Context, gen Generation, filename string, catalog []Variant, startedAt time.Time) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, v := range catalog {
		g.Go(func() error {
			if s.Current() != gen {
				return nil
			}
			s.probe(ctx, gen, filename, v, startedAt)
			return nil
		})
	}
	g.Wait()
}

// probe 执行一次探测并在完成时检查批次编号
func (s *Session) probe(ctx context.Context, gen Generation, filename string, v Variant, startedAt time.Time) {
	rec, err := s.prober.Measure(ctx, v)

	if s.Current() != gen {
		s.logger.Debug("批次 #%d 已过期，丢弃 %s", gen, v.Key())
		return
	}

	var o Outcome
	var failure *ProbeFailure
	switch {
	case err == nil:
		o.Record = &rec
	case errors.As(err, &failure):
		o.Failure = failure
	default:
		o.Failure = newProbeFailure(v, ReasonResourceError, err)
	}
	s.logger.LogProbe(gen, v, o)

	completion, ok := s.gate.Observe(gen, o)
	if !ok {
		return
	}

	report := NewReport(ReportInput{
		Generation:  gen,
		Filename:    filename,
		BaseURL:     s.baseURL,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Expected:    completion.Expected,
		Records:     completion.Records,
		Failures:    completion.Failures,
	}, s.aggregator)
	s.publish(report)
}

// publish 保存并广播报告，已过期的报告不会覆盖新批次
func (s *Session) publish(report *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Current() != report.Generation {
		s.logger.Debug("批次 #%d 已过期，丢弃报告", report.Generation)
		return
	}
	s.latest.Store(report)
	s.logger.Info("批次 #%d 完成: 成功 %d, 失败 %d", report.Generation, len(report.Records), len(report.Failures))

	for _, ch := range s.subscribers {
		select {
		case ch <- report:
		default:
			// 订阅者未及时读取时只保留最新的报告
			select {
			case <-ch:
			default:
			}
			ch <- report
		}
	}
}

// Latest 最近一次完成的报告，没有时为 nil
func (s *Session) Latest() *Report {
	return s.latest.Load()
}

// Subscribe 订阅已完成的报告，返回取消函数
func (s *Session) Subscribe() (<-chan *Report, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan *Report, 1)
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Wait 等待指定批次的报告
func (s *Session) Wait(ctx context.Context, gen Generation) (*Report, error) {
	ch, cancel := s.Subscribe()
	defer cancel()

	if r := s.Latest(); r != nil && r.Generation == gen {
		return r, nil
	}
	if _, err := s.gate.Wait(ctx, gen); err != nil {
		return nil, err
	}

	for {
		if r := s.Latest(); r != nil && r.Generation == gen {
			return r, nil
		}
		select {
		case r := <-ch:
			if r.Generation == gen {
				return r, nil
			}
			if r.Generation > gen {
				return nil, ErrSuperseded
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
