package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := New(nil)
	n := 0
	b.newID = func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	}
	b.now = func() time.Time { return fixedTime }
	return b
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestParseTopics(t *testing.T) {
	all, err := ParseTopics("")
	require.NoError(t, err)
	assert.Equal(t, AllTopics, all)

	topics, err := ParseTopics(" beds, patients ,beds")
	require.NoError(t, err)
	assert.Equal(t, []Topic{TopicBeds, TopicPatients}, topics)

	_, err = ParseTopics("beds,wards")
	assert.EqualError(t, err, `unknown topic "wards"`)
}

func TestPublish_BumpsOnlyPublishedTopics(t *testing.T) {
	b := newTestBus(t)

	events, err := b.Publish(context.Background(), "bed assigned", TopicBeds, TopicPatients)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, Event{ID: "ev-1", Topic: TopicBeds, Version: 1, Reason: "bed assigned", At: fixedTime}, events[0])

	_, err = b.Publish(context.Background(), "bed released", TopicBeds)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), b.Version(TopicBeds))
	assert.Equal(t, uint64(1), b.Version(TopicPatients))
	assert.Equal(t, uint64(0), b.Version(TopicAppointments))
	assert.Equal(t, map[Topic]uint64{TopicBeds: 2, TopicDoctors: 0}, b.Versions(TopicBeds, TopicDoctors))
	assert.Len(t, b.Versions(), len(AllTopics))
}

func TestPublish_NoTopics(t *testing.T) {
	b := newTestBus(t)
	events, err := b.Publish(context.Background(), "noop")
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestSubscribe_ReceivesOnlySubscribedTopics(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, TopicBeds)
	_, _ = b.Publish(context.Background(), "appointment scheduled", TopicAppointments)
	_, _ = b.Publish(context.Background(), "bed assigned", TopicBeds)

	ev := receive(t, ch)
	assert.Equal(t, TopicBeds, ev.Topic)
	assert.Equal(t, uint64(1), ev.Version)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestSubscribe_ClosesOnCancel(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, TopicBeds, TopicPatients)
	assert.Equal(t, 1, b.SubscriberCount(TopicBeds))
	assert.Equal(t, 1, b.SubscriberCount(TopicPatients))

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, b.SubscriberCount(TopicBeds))
	assert.Equal(t, 0, b.SubscriberCount(TopicPatients))
}

func TestPublish_SlowSubscriberDropsEvents(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, TopicBeds)
	for i := 0; i < subscriberBuffer+5; i++ {
		_, _ = b.Publish(context.Background(), "bed assigned", TopicBeds)
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, uint64(subscriberBuffer+5), b.Version(TopicBeds))
}

func TestPublish_RelaysToRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := New(db)
	b.origin = "instance-a"
	b.newID = func() string { return "ev" }
	b.now = func() time.Time { return fixedTime }

	payload, err := json.Marshal(relayMessage{
		ID:     "ev",
		Origin: "instance-a",
		Reason: "patient registered",
		Topics: []Topic{TopicPatients},
		At:     fixedTime,
	})
	require.NoError(t, err)
	mock.ExpectPublish(RedisChannel, string(payload)).SetVal(1)

	events, err := b.Publish(context.Background(), "patient registered", TopicPatients)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_RelayFailureStillDeliversLocally(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := New(db)
	b.origin = "instance-a"
	b.newID = func() string { return "ev" }
	b.now = func() time.Time { return fixedTime }

	payload, _ := json.Marshal(relayMessage{ID: "ev", Origin: "instance-a", Reason: "r", Topics: []Topic{TopicBeds}, At: fixedTime})
	mock.ExpectPublish(RedisChannel, string(payload)).SetErr(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, TopicBeds)

	_, err := b.Publish(context.Background(), "r", TopicBeds)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, uint64(1), receive(t, ch).Version)
}

func TestHandleRelay(t *testing.T) {
	b := newTestBus(t)
	b.origin = "instance-a"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	own, _ := json.Marshal(relayMessage{Origin: "instance-a", Reason: "own", Topics: []Topic{TopicBeds}})
	b.handleRelay(string(own))
	assert.Equal(t, uint64(0), b.Version(TopicBeds))

	b.handleRelay("not json")
	assert.Equal(t, uint64(0), b.Version(TopicBeds))

	remote, _ := json.Marshal(relayMessage{Origin: "instance-b", Reason: "bed assigned", Topics: []Topic{TopicBeds, "wards"}, At: fixedTime})
	b.handleRelay(string(remote))
	assert.Equal(t, uint64(1), b.Version(TopicBeds))

	ev := receive(t, ch)
	assert.Equal(t, TopicBeds, ev.Topic)
	assert.Equal(t, "bed assigned", ev.Reason)
}

func TestRun_WithoutRedis(t *testing.T) {
	assert.NoError(t, New(nil).Run(context.Background()))
}
