package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"boleto-import-backend/db/models"
	"boleto-import-backend/imports/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	mu     sync.Mutex
	events []services.ProgressEvent
}

func (e *emitted) emit(event services.ProgressEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *emitted) snapshot() []services.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]services.ProgressEvent(nil), e.events...)
}

type snapshotSource struct {
	mu    sync.Mutex
	event services.ProgressEvent
}

func (s *snapshotSource) set(event services.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event = event
}

func (s *snapshotSource) read(ctx context.Context) (services.ProgressEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event, nil
}

func TestStreamProgress_TerminalSnapshotEndsImmediately(t *testing.T) {
	hub := startHub(t)
	source := &snapshotSource{event: progressEvent("import-a", models.ImportStatusCompleted, 10)}
	out := &emitted{}

	err := StreamProgress(context.Background(), hub, "import-a", source.read, out.emit, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []services.ProgressEvent{source.event}, out.snapshot())
}

func TestStreamProgress_RelaysHubEventsUntilTerminal(t *testing.T) {
	hub := startHub(t)
	source := &snapshotSource{event: progressEvent("import-a", models.ImportStatusQueued, 0)}
	out := &emitted{}

	done := make(chan error, 1)
	go func() {
		done <- StreamProgress(context.Background(), hub, "import-a", source.read, out.emit, time.Hour)
	}()

	require.Eventually(t, func() bool { return len(out.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(progressEvent("import-a", models.ImportStatusProcessing, 5))
	hub.Broadcast(progressEvent("import-b", models.ImportStatusCompleted, 10))
	hub.Broadcast(progressEvent("import-a", models.ImportStatusCompleted, 10))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not end on terminal event")
	}

	events := out.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, models.ImportStatusQueued, events[0].Status)
	assert.Equal(t, 5, events[1].Progress.Processed)
	assert.Equal(t, models.ImportStatusCompleted, events[2].Status)
	assert.Equal(t, 0, hub.SubscriberCount("import-a"))
}

func TestStreamProgress_PollsWhenNoEventsArrive(t *testing.T) {
	hub := startHub(t)
	source := &snapshotSource{event: progressEvent("import-a", models.ImportStatusProcessing, 1)}
	out := &emitted{}

	done := make(chan error, 1)
	go func() {
		done <- StreamProgress(context.Background(), hub, "import-a", source.read, out.emit, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return len(out.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	// unchanged snapshots are not re-emitted
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, out.snapshot(), 1)

	source.set(progressEvent("import-a", models.ImportStatusFailed, 4))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not end after polled terminal status")
	}

	events := out.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, models.ImportStatusFailed, events[1].Status)
}

func TestStreamProgress_StopsOnContextOrEmitError(t *testing.T) {
	hub := startHub(t)
	source := &snapshotSource{event: progressEvent("import-a", models.ImportStatusProcessing, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, StreamProgress(ctx, hub, "import-a", source.read, (&emitted{}).emit, time.Hour))

	emitErr := errors.New("client gone")
	err := StreamProgress(context.Background(), hub, "import-a", source.read, func(services.ProgressEvent) error {
		return emitErr
	}, time.Hour)
	assert.ErrorIs(t, err, emitErr)
}

func TestStreamProgress_SnapshotError(t *testing.T) {
	hub := startHub(t)
	loadErr := errors.New("import not found")

	err := StreamProgress(context.Background(), hub, "import-a", func(context.Context) (services.ProgressEvent, error) {
		return services.ProgressEvent{}, loadErr
	}, (&emitted{}).emit, time.Hour)
	assert.ErrorIs(t, err, loadErr)
}

func TestDecodeProgressMessage(t *testing.T) {
	event, err := decodeProgressMessage(ProgressChannel("abc"), `{"importId":"abc","status":"processing","progress":{"total":3,"processed":1,"success":1,"error":0}}`)
	require.NoError(t, err)
	assert.Equal(t, progressEventWithTotal("abc", models.ImportStatusProcessing, 3, 1), event)

	event, err = decodeProgressMessage(ProgressChannel("xyz"), `{"status":"completed"}`)
	require.NoError(t, err)
	assert.Equal(t, "xyz", event.ImportID)

	_, err = decodeProgressMessage(ProgressChannel("xyz"), `not json`)
	assert.Error(t, err)
}

func progressEventWithTotal(importID string, status models.ImportStatus, total, success int) services.ProgressEvent {
	return services.ProgressEvent{
		ImportID: importID,
		Status:   status,
		Progress: services.ProgressCounts{Total: total, Processed: success, Success: success},
	}
}

func TestProgressChannel(t *testing.T) {
	assert.Equal(t, "imports:progress:abc", ProgressChannel("abc"))
}
