package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ckindle-42/portal/pkg/config"
)

func testLifecycleConfig(shutdownSeconds int) *config.LifecycleConfig {
	cfg := config.DefaultLifecycleConfig()
	cfg.ShutdownTimeoutSeconds = shutdownSeconds
	return cfg
}

func TestTrackAndRelease(t *testing.T) {
	r := New(testLifecycleConfig(30))

	done1 := r.Track("request-a")
	done2 := r.Track("request-b")
	assert.Equal(t, []string{"request-a", "request-b"}, r.ActiveTasks())

	done1()
	assert.Equal(t, []string{"request-b"}, r.ActiveTasks())

	// Release is idempotent.
	done1()
	done2()
	assert.Empty(t, r.ActiveTasks())
}

func TestAcceptingWorkFlipsAtShutdown(t *testing.T) {
	r := New(testLifecycleConfig(1))
	assert.True(t, r.AcceptingWork())

	r.Shutdown(context.Background())
	assert.False(t, r.AcceptingWork())
}

func TestShutdownWaitsForTasks(t *testing.T) {
	r := New(testLifecycleConfig(4))
	release := r.Track("slow-request")

	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	start := time.Now()
	r.Shutdown(context.Background())

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "shutdown returned before the task drained")
	assert.Less(t, elapsed, 2*time.Second, "shutdown waited past the drain budget")
}

func TestShutdownProceedsPastStragglers(t *testing.T) {
	r := New(testLifecycleConfig(1)) // drain budget: 500ms
	_ = r.Track("stuck-request")     // never released

	start := time.Now()
	r.Shutdown(context.Background())

	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestHooksRunInPriorityOrder(t *testing.T) {
	r := New(testLifecycleConfig(5))

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	r.RegisterShutdownHook("flush-limiter", PriorityNormal, time.Second, record("flush-limiter"))
	r.RegisterShutdownHook("stop-server", PriorityCritical, time.Second, record("stop-server"))
	r.RegisterShutdownHook("close-db", PriorityLowest, time.Second, record("close-db"))
	r.RegisterShutdownHook("stop-watchdog", PriorityHigh, time.Second, record("stop-watchdog"))
	r.RegisterShutdownHook("close-engine", PriorityLow, time.Second, record("close-engine"))

	r.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"stop-server", "stop-watchdog", "flush-limiter", "close-engine", "close-db",
	}, order)
}

func TestHooksSamePriorityKeepRegistrationOrder(t *testing.T) {
	r := New(testLifecycleConfig(5))

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		r.RegisterShutdownHook(name, PriorityNormal, time.Second, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	r.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHookFailureDoesNotAbortSequence(t *testing.T) {
	r := New(testLifecycleConfig(5))

	var ran bool
	r.RegisterShutdownHook("broken", PriorityHigh, time.Second, func(context.Context) error {
		return errors.New("flush failed")
	})
	r.RegisterShutdownHook("after", PriorityLow, time.Second, func(context.Context) error {
		ran = true
		return nil
	})

	r.Shutdown(context.Background())
	assert.True(t, ran)
}

func TestHookTimeoutDoesNotStallShutdown(t *testing.T) {
	r := New(testLifecycleConfig(5))

	r.RegisterShutdownHook("hanging", PriorityHigh, 100*time.Millisecond, func(ctx context.Context) error {
		<-make(chan struct{}) // ignores its context entirely
		return nil
	})

	start := time.Now()
	r.Shutdown(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHookPanicContained(t *testing.T) {
	r := New(testLifecycleConfig(5))

	var ran bool
	r.RegisterShutdownHook("bomb", PriorityHigh, time.Second, func(context.Context) error {
		panic("kaboom")
	})
	r.RegisterShutdownHook("after", PriorityLow, time.Second, func(context.Context) error {
		ran = true
		return nil
	})

	require.NotPanics(t, func() { r.Shutdown(context.Background()) })
	assert.True(t, ran)
}

func TestShutdownIsIdempotent(t *testing.T) {
	r := New(testLifecycleConfig(5))

	var calls int
	var mu sync.Mutex
	r.RegisterShutdownHook("once", PriorityNormal, time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})

	r.Shutdown(context.Background())
	r.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
