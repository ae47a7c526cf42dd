package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceiverSelector(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var got []Message
	_, err := b.Subscribe("receiver:DEVELOPER", func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	require.NoError(t, err)

	b.Publish(Message{Type: TaskAssigned, Receiver: "DEVELOPER"})
	b.Publish(Message{Type: TaskAssigned, Receiver: "ARCHITECT"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, time.Millisecond)
}

func TestWildcardSelectorReceivesEverything(t *testing.T) {
	b := New()
	defer b.Close()

	var count int32
	var mu sync.Mutex
	_, err := b.Subscribe(selectorWildcard, func(m Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.Publish(Message{Type: StageStart})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 5
	}, time.Second, time.Millisecond)
}

func TestPerSubscriberFIFO(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var order []int
	_, err := b.Subscribe("type:"+string(TaskComplete), func(m Message) {
		mu.Lock()
		order = append(order, m.Payload["seq"].(int))
		mu.Unlock()
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		b.Publish(Message{Type: TaskComplete, Payload: map[string]any{"seq": i}})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 20
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestPanicInCallbackDoesNotStopOtherSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var delivered bool
	_, err := b.Subscribe(selectorWildcard, func(m Message) {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = b.Subscribe(selectorWildcard, func(m Message) {
		mu.Lock()
		delivered = true
		mu.Unlock()
	})
	require.NoError(t, err)

	b.Publish(Message{Type: StageStart})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered
	}, time.Second, time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var count int
	handle, err := b.Subscribe(selectorWildcard, func(m Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	b.Publish(Message{Type: StageStart})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, time.Millisecond)

	b.Unsubscribe(handle)
	b.Publish(Message{Type: StageStart})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestInvalidSelectorRejected(t *testing.T) {
	b := New()
	defer b.Close()
	_, err := b.Subscribe("bogus", func(Message) {})
	require.Error(t, err)
}
