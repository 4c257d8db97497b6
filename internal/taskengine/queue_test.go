package taskengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDescriptorQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := newDescriptorQueue()

	q.push(taskDescriptor{taskType: "low-a", priority: 100})
	q.push(taskDescriptor{taskType: "high", priority: 1})
	q.push(taskDescriptor{taskType: "low-b", priority: 100})

	ctx := context.Background()

	first, ok := q.pop(ctx)
	require.True(t, ok)
	require.Equal(t, "high", first.taskType, "lower priority value pops first")

	second, ok := q.pop(ctx)
	require.True(t, ok)
	require.Equal(t, "low-a", second.taskType, "equal priority preserves insertion order")

	third, ok := q.pop(ctx)
	require.True(t, ok)
	require.Equal(t, "low-b", third.taskType)
}

func TestDescriptorQueuePopUnblocksOnPush(t *testing.T) {
	q := newDescriptorQueue()
	ctx := context.Background()

	done := make(chan taskDescriptor, 1)
	go func() {
		d, ok := q.pop(ctx)
		if ok {
			done <- d
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.push(taskDescriptor{taskType: "arrived"})

	select {
	case d := <-done:
		require.Equal(t, "arrived", d.taskType)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestDescriptorQueuePopReturnsFalseWhenContextCancelled(t *testing.T) {
	q := newDescriptorQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.pop(ctx)
	require.False(t, ok)
}
