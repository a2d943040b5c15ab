package websocket

import (
	"testing"
	"time"

	"boleto-import-backend/db/models"
	"boleto-import-backend/imports/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func progressEvent(importID string, status models.ImportStatus, processed int) services.ProgressEvent {
	return services.ProgressEvent{
		ImportID: importID,
		Status:   status,
		Progress: services.ProgressCounts{Total: 10, Processed: processed, Success: processed},
	}
}

func receive(t *testing.T, sub *Subscriber) services.ProgressEvent {
	t.Helper()
	select {
	case event, ok := <-sub.Send:
		require.True(t, ok, "subscriber channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return services.ProgressEvent{}
	}
}

func TestHub_DeliversOnlyToSameImport(t *testing.T) {
	hub := startHub(t)

	a := hub.Subscribe("import-a")
	b := hub.Subscribe("import-b")
	require.NotNil(t, a)
	require.NotNil(t, b)

	hub.Broadcast(progressEvent("import-a", models.ImportStatusProcessing, 3))

	assert.Equal(t, 3, receive(t, a).Progress.Processed)
	select {
	case event := <-b.Send:
		t.Fatalf("unexpected event for other import: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := startHub(t)

	sub := hub.Subscribe("import-a")
	assert.Eventually(t, func() bool { return hub.SubscriberCount("import-a") == 1 }, time.Second, 5*time.Millisecond)

	hub.Unsubscribe(sub)
	_, ok := <-sub.Send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.SubscriberCount("import-a"))

	// a second unsubscribe is a no-op
	hub.Unsubscribe(sub)
	hub.Unsubscribe(nil)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := startHub(t)
	sub := hub.Subscribe("import-a")

	for i := 0; i <= subscriberBuffer; i++ {
		hub.Broadcast(progressEvent("import-a", models.ImportStatusProcessing, i))
	}

	assert.Eventually(t, func() bool { return hub.SubscriberCount("import-a") == 0 }, time.Second, 5*time.Millisecond)

	drained := 0
	for range sub.Send {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	sub := hub.Subscribe("import-a")
	hub.Stop()
	hub.Stop()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Nil(t, hub.Subscribe("import-a"))
	hub.Broadcast(progressEvent("import-a", models.ImportStatusProcessing, 1))
}
