package notifier

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_NotifyReachesSubscribers(t *testing.T) {
	hub := NewHub()
	var a, b int32
	subA := hub.Subscribe(func() { atomic.AddInt32(&a, 1) })
	subB := hub.Subscribe(func() { atomic.AddInt32(&b, 1) })
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	hub.Notify()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&a) == 1 && atomic.LoadInt32(&b) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHub_CoalescesWhileCallbackRuns(t *testing.T) {
	hub := NewHub()
	release := make(chan struct{})
	var calls int32
	sub := hub.Subscribe(func() {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
	})
	defer sub.Unsubscribe()

	hub.Notify()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 50; i++ {
		hub.Notify()
	}
	close(release)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	var calls int32
	sub := hub.Subscribe(func() { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 1, hub.ClientCount())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, hub.ClientCount())

	hub.Notify()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSubscription_NilSafe(t *testing.T) {
	var sub *Subscription
	assert.NotPanics(t, func() { sub.Unsubscribe() })
	assert.NotPanics(t, func() { (&Subscription{}).Unsubscribe() })
}

func TestHub_NotifyWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() { NewHub().Notify() })
}
