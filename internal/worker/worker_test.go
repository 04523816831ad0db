package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	name    string
	failOn  map[int64]bool
	panicOn map[int64]bool

	mu          sync.Mutex
	executed    []int64
	inFlight    int32
	maxInFlight int32
}

func (s *stubExecutor) Name() string { return s.name }

func (s *stubExecutor) ExecuteItem(ctx context.Context, id int64) error {
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)

	for {
		prev := atomic.LoadInt32(&s.maxInFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&s.maxInFlight, prev, cur) {
			break
		}
	}

	s.mu.Lock()
	s.executed = append(s.executed, id)
	s.mu.Unlock()

	if s.panicOn[id] {
		panic("item blew up")
	}
	if s.failOn[id] {
		return errors.New("item failed")
	}

	return nil
}

type stubPlanner struct {
	name  string
	items []int64
}

func (s *stubPlanner) Name() string                              { return s.name }
func (s *stubPlanner) Plan(ctx context.Context) ([]int64, error) { return s.items, nil }

func TestSliceBatches(t *testing.T) {
	items := []int64{1, 2, 3, 4, 5}

	batches := SliceBatches(items, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []int64{1, 2}, batches[0])
	assert.Equal(t, []int64{5}, batches[2])

	assert.Nil(t, SliceBatches(nil, 2))

	// A nonsense size degrades to one item per batch
	assert.Len(t, SliceBatches(items, 0), 5)

	batches = SliceBatches(items, 10)
	require.Len(t, batches, 1)
	assert.Equal(t, items, batches[0])
}

func TestMessageRoundTrip(t *testing.T) {
	payload, err := EncodeMessage("pin-to-crust", []int64{3, 7})
	require.NoError(t, err)

	msg, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, "pin-to-crust", msg.WorkerName)
	assert.Len(t, msg.JobID, 12)
	assert.Equal(t, []int64{3, 7}, msg.Parameters)

	// Two batches of the same plan get distinct job ids
	other, err := EncodeMessage("pin-to-crust", []int64{9})
	require.NoError(t, err)
	otherMsg, err := DecodeMessage(other)
	require.NoError(t, err)
	assert.NotEqual(t, msg.JobID, otherMsg.JobID)

	_, err = DecodeMessage([]byte("{broken"))
	require.Error(t, err)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	e := &stubExecutor{
		name:    "test-worker",
		failOn:  map[int64]bool{2: true},
		panicOn: map[int64]bool{4: true},
	}

	msg := &Message{
		WorkerName: "test-worker",
		JobID:      "job123",
		Parameters: []int64{1, 2, 3, 4, 5},
	}

	// A failing and a panicking item never stop their siblings
	RunBatch(context.Background(), e, msg, 2)

	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, e.executed)
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	e := &stubExecutor{name: "test-worker"}

	ids := make([]int64, 64)
	for i := range ids {
		ids[i] = int64(i)
	}

	RunBatch(context.Background(), e, &Message{JobID: "job456", Parameters: ids}, 4)

	assert.Len(t, e.executed, 64)
	assert.LessOrEqual(t, e.maxInFlight, int32(4))

	// Zero concurrency degrades to serial execution instead of deadlock
	e = &stubExecutor{name: "test-worker"}
	RunBatch(context.Background(), e, &Message{JobID: "job789", Parameters: []int64{1, 2}}, 0)
	assert.Len(t, e.executed, 2)
	assert.EqualValues(t, 1, e.maxInFlight)
}

func TestRegisterRejectsMismatchedPair(t *testing.T) {
	o := NewOrchestrator(nil, "localhost:6379", 4, 10)

	err := o.Register(&stubPlanner{name: "a"}, &stubExecutor{name: "b"})
	require.Error(t, err)

	require.NoError(t, o.Register(&stubPlanner{name: "a"}, &stubExecutor{name: "a"}))

	// Double registration of the same name is a wiring bug
	err = o.Register(&stubPlanner{name: "a"}, &stubExecutor{name: "a"})
	require.Error(t, err)
}
