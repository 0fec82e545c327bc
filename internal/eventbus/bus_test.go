package eventbus

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/models"
)

func TestPublishDeliversToMatchingSubscriberOnly(t *testing.T) {
	bus := New("", 100)

	installSub := bus.Subscribe(func(e models.Event) bool { return e.Kind == models.EventInstallProgress })
	defer installSub.Unsubscribe()

	bus.Publish(models.EventResourceAlert, "resources", nil)
	bus.Publish(models.EventInstallProgress, "installer", map[string]string{"step": "clone"})

	select {
	case e := <-installSub.Events():
		assert.Equal(t, models.EventInstallProgress, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a filtered event to arrive")
	}

	select {
	case e := <-installSub.Events():
		t.Fatalf("unexpected extra event: %+v", e)
	default:
	}
}

func TestSequenceNumbersAreMonotonic(t *testing.T) {
	bus := New("", 100)
	a := bus.Publish(models.EventAppStateChanged, "supervisor", nil)
	b := bus.Publish(models.EventAppStateChanged, "supervisor", nil)
	assert.Greater(t, b.Seq, a.Seq)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New("", 100)
	sub := bus.Subscribe(nil)
	sub.Unsubscribe()

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestRecentReturnsMostRecentEventsInOrder(t *testing.T) {
	bus := New("", 100)
	for i := 0; i < 5; i++ {
		bus.Publish(models.EventAppStateChanged, "supervisor", i)
	}
	recent := bus.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].Payload)
	assert.Equal(t, 4, recent[1].Payload)
	assert.Less(t, recent[0].Seq, recent[1].Seq)
}

func TestConcurrentPublishPreservesSeqOrderPerSubscriber(t *testing.T) {
	bus := New("", 1000)
	sub := bus.Subscribe(nil)
	defer sub.Unsubscribe()

	const perGoroutine = 50
	const goroutines = 8

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				bus.Publish(models.EventAppStateChanged, "supervisor", nil)
			}
		}()
	}
	wg.Wait()

	var lastSeq uint64
	for i := 0; i < goroutines*perGoroutine; i++ {
		select {
		case e := <-sub.Events():
			assert.Greater(t, e.Seq, lastSeq, "event seq must strictly increase in delivery order")
			lastSeq = e.Seq
		case <-time.After(time.Second):
			t.Fatalf("expected %d events, got %d", goroutines*perGoroutine, i)
		}
	}
}

func TestRingPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ringPath := filepath.Join(dir, "events.ring")

	bus := New(ringPath, 10)
	bus.Publish(models.EventAppStateChanged, "supervisor", "first")

	reopened := New(ringPath, 10)
	recent := reopened.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "first", recent[0].Payload.(string))
}
