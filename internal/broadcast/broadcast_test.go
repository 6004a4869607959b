package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishDeliversToAllSubscribers(t *testing.T) {
	b := New[string]()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish("hello")

	select {
	case v := <-ch1:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive value")
	}

	select {
	case v := <-ch2:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive value")
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	ch, unsub := b.Subscribe()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_SlowSubscriberDoesNotBlockProducer(t *testing.T) {
	b := NewWithBuffer[int](1)
	ch, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	require.NotNil(t, ch)
}

func TestBroadcaster_CloseClosesAllSubscribers(t *testing.T) {
	b := New[int]()
	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Close()

	_, open1 := <-ch1
	_, open2 := <-ch2
	assert.False(t, open1)
	assert.False(t, open2)
}
