package main

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordOutcome(size int, format string) Outcome {
	return Outcome{Record: &MeasurementRecord{Size: size, Format: format, LoadTimeMs: 10, SizeKb: 1}}
}

func failureOutcome(size int, format string) Outcome {
	return Outcome{Failure: newProbeFailure(Variant{Size: size, Format: format}, ReasonResourceError, nil)}
}

func TestGateCompletesExactlyOnceUnderRandomInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(12)
		outcomes := make([]Outcome, n)
		successes := 0
		for i := range outcomes {
			if rng.Intn(4) == 0 {
				outcomes[i] = failureOutcome(i, "jpeg")
			} else {
				outcomes[i] = recordOutcome(i, "webp")
				successes++
			}
		}
		rng.Shuffle(len(outcomes), func(i, j int) { outcomes[i], outcomes[j] = outcomes[j], outcomes[i] })

		delays := make([]time.Duration, n)
		for i := range delays {
			delays[i] = time.Duration(rng.Intn(200)) * time.Microsecond
		}

		gate := NewCompletionGate()
		gen := Generation(iter + 1)
		gate.Open(gen, n)

		var fired atomic.Int64
		var got *Completion
		var mu sync.Mutex
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := range outcomes {
			wg.Add(1)
			go func(o Outcome, d time.Duration) {
				defer wg.Done()
				<-start
				time.Sleep(d)
				if c, ok := gate.Observe(gen, o); ok {
					fired.Add(1)
					mu.Lock()
					got = c
					mu.Unlock()
				}
			}(outcomes[i], delays[i])
		}
		close(start)
		wg.Wait()

		require.Equal(t, int64(1), fired.Load(), "iteration %d", iter)
		require.NotNil(t, got)
		assert.Equal(t, gen, got.Generation)
		assert.Equal(t, n, got.Expected)
		assert.Len(t, got.Records, successes)
		assert.Len(t, got.Failures, n-successes)
	}
}

func TestGateIgnoresObservationsAfterCompletion(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(1, 2)

	_, ok := gate.Observe(1, recordOutcome(200, "jpeg"))
	assert.False(t, ok)
	c, ok := gate.Observe(1, recordOutcome(200, "webp"))
	require.True(t, ok)
	assert.Len(t, c.Records, 2)

	_, ok = gate.Observe(1, recordOutcome(400, "webp"))
	assert.False(t, ok)
}

func TestGateDropsStaleGeneration(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(1, 3)

	_, ok := gate.Observe(1, recordOutcome(200, "jpeg"))
	assert.False(t, ok)
	_, ok = gate.Observe(1, recordOutcome(200, "webp"))
	assert.False(t, ok)

	gate.Open(2, 2)
	assert.Equal(t, Generation(2), gate.Current())

	// 第 1 批次的最后一个结果到达时已过期
	_, ok = gate.Observe(1, recordOutcome(400, "jpeg"))
	assert.False(t, ok)

	_, ok = gate.Observe(2, recordOutcome(800, "jpeg"))
	assert.False(t, ok)
	c, ok := gate.Observe(2, failureOutcome(800, "webp"))
	require.True(t, ok)

	assert.Equal(t, Generation(2), c.Generation)
	require.Len(t, c.Records, 1)
	assert.Equal(t, 800, c.Records[0].Size)
	assert.Len(t, c.Failures, 1)
}

func TestGateSupersededRoundReachingCountHandsNothingOn(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(1, 1)
	old := gate.current.Load()

	// 旧批次的观察已通过编号检查，计数前新批次开启
	gate.Open(2, 1)
	c, ok := gate.observe(old, recordOutcome(200, "jpeg"))
	assert.False(t, ok)
	assert.Nil(t, c)

	select {
	case <-old.done:
	default:
		t.Fatal("old round should still finish once its count is reached")
	}

	_, err := gate.Wait(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSuperseded)

	c, ok = gate.Observe(2, recordOutcome(400, "webp"))
	require.True(t, ok)
	assert.Equal(t, Generation(2), c.Generation)
	require.Len(t, c.Records, 1)
	assert.Equal(t, 400, c.Records[0].Size)
}

func TestGateWait(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(7, 1)

	done := make(chan *Completion)
	go func() {
		c, err := gate.Wait(context.Background(), 7)
		assert.NoError(t, err)
		done <- c
	}()

	time.Sleep(10 * time.Millisecond)
	gate.Observe(7, recordOutcome(200, "jpeg"))

	select {
	case c := <-done:
		require.NotNil(t, c)
		assert.Len(t, c.Records, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after completion")
	}

	// 已完成的批次可以重复等待
	c, err := gate.Wait(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, Generation(7), c.Generation)
}

func TestGateWaitSuperseded(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(1, 5)

	errCh := make(chan error)
	go func() {
		_, err := gate.Wait(context.Background(), 1)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	gate.Open(2, 5)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe supersede")
	}

	_, err := gate.Wait(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSuperseded)
}

func TestGateWaitContextCancelled(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(1, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gate.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateZeroExpectedCompletesImmediately(t *testing.T) {
	gate := NewCompletionGate()
	gate.Open(3, 0)

	c, err := gate.Wait(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, c.Records)
	assert.Empty(t, c.Failures)
}
