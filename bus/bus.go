// Package bus carries refresh signals between mutations and the widgets that
// display the mutated data. Each topic has its own monotonically increasing
// version so a bed mutation only invalidates bed and patient views.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Topic names one entity family whose views refresh together.
type Topic string

const (
	TopicPatients     Topic = "patients"
	TopicDoctors      Topic = "doctors"
	TopicAppointments Topic = "appointments"
	TopicBeds         Topic = "beds"
)

// AllTopics is every topic, in a stable order.
var AllTopics = []Topic{TopicPatients, TopicDoctors, TopicAppointments, TopicBeds}

// RedisChannel is the pub/sub channel used to relay events between instances.
const RedisChannel = "hospital:refresh"

const subscriberBuffer = 16

// ParseTopics reads a comma separated topic list. An empty list means all topics.
func ParseTopics(raw string) ([]Topic, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]Topic(nil), AllTopics...), nil
	}
	seen := make(map[Topic]bool)
	var topics []Topic
	for _, part := range strings.Split(raw, ",") {
		t := Topic(strings.TrimSpace(part))
		if t == "" || seen[t] {
			continue
		}
		if !t.Valid() {
			return nil, fmt.Errorf("unknown topic %q", t)
		}
		seen[t] = true
		topics = append(topics, t)
	}
	return topics, nil
}

func (t Topic) Valid() bool {
	for _, known := range AllTopics {
		if t == known {
			return true
		}
	}
	return false
}

// Event tells subscribers that data under Topic changed.
type Event struct {
	ID      string    `json:"id"`
	Topic   Topic     `json:"topic"`
	Version uint64    `json:"version"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// relayMessage is what travels over Redis. Versions are per instance, so
// only the topics travel and each receiver bumps its own counters.
type relayMessage struct {
	ID     string    `json:"id"`
	Origin string    `json:"origin"`
	Reason string    `json:"reason"`
	Topics []Topic   `json:"topics"`
	At     time.Time `json:"at"`
}

// Bus is an in-process publish/subscribe hub with optional Redis relay.
// The zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	versions    map[Topic]uint64
	subscribers map[Topic]map[chan Event]struct{}

	redis  *redis.Client
	origin string
	newID  func() string
	now    func() time.Time
}

// New creates a bus. rdb may be nil, in which case events stay in process.
func New(rdb *redis.Client) *Bus {
	return &Bus{
		versions:    make(map[Topic]uint64),
		subscribers: make(map[Topic]map[chan Event]struct{}),
		redis:       rdb,
		origin:      uuid.NewString(),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Version returns the current version of a topic.
func (b *Bus) Version(t Topic) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.versions[t]
}

// Versions returns the current versions of the given topics, or of all
// topics when none are given.
func (b *Bus) Versions(topics ...Topic) map[Topic]uint64 {
	if len(topics) == 0 {
		topics = AllTopics
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Topic]uint64, len(topics))
	for _, t := range topics {
		out[t] = b.versions[t]
	}
	return out
}

// Publish bumps the version of every topic, delivers the events locally and
// relays them to other instances when Redis is configured. Local delivery
// always happens; the returned error only reports a failed relay.
func (b *Bus) Publish(ctx context.Context, reason string, topics ...Topic) ([]Event, error) {
	topics = dedupe(topics)
	if len(topics) == 0 {
		return nil, nil
	}
	at := b.now()
	events := b.deliver(reason, topics, at)

	if b.redis == nil {
		return events, nil
	}
	payload, err := json.Marshal(relayMessage{
		ID:     b.newID(),
		Origin: b.origin,
		Reason: reason,
		Topics: topics,
		At:     at,
	})
	if err != nil {
		return events, fmt.Errorf("failed to marshal refresh event: %w", err)
	}
	if err := b.redis.Publish(ctx, RedisChannel, string(payload)).Err(); err != nil {
		return events, fmt.Errorf("failed to relay refresh event: %w", err)
	}
	return events, nil
}

func (b *Bus) deliver(reason string, topics []Topic, at time.Time) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := make([]Event, 0, len(topics))
	for _, t := range topics {
		b.versions[t]++
		ev := Event{
			ID:      b.newID(),
			Topic:   t,
			Version: b.versions[t],
			Reason:  reason,
			At:      at,
		}
		events = append(events, ev)
		for ch := range b.subscribers[t] {
			select {
			case ch <- ev:
			default:
				log.Debug().Str("topic", string(t)).Uint64("version", ev.Version).Msg("subscriber buffer full, dropping refresh event")
			}
		}
	}
	return events
}

// Subscribe returns a channel receiving events for the given topics (all
// topics when none are given). The channel is closed once ctx is done.
// A subscriber that falls behind misses events; the next event it does
// receive carries a newer version.
func (b *Bus) Subscribe(ctx context.Context, topics ...Topic) <-chan Event {
	topics = dedupe(topics)
	if len(topics) == 0 {
		topics = AllTopics
	}
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	for _, t := range topics {
		if b.subscribers[t] == nil {
			b.subscribers[t] = make(map[chan Event]struct{})
		}
		b.subscribers[t][ch] = struct{}{}
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for _, t := range topics {
			delete(b.subscribers[t], ch)
			if len(b.subscribers[t]) == 0 {
				delete(b.subscribers, t)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

// SubscriberCount returns the number of live subscribers of a topic.
func (b *Bus) SubscriberCount(t Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[t])
}

// Run relays events published by other instances into this bus until ctx
// is done. It returns immediately when Redis is not configured.
func (b *Bus) Run(ctx context.Context) error {
	if b.redis == nil {
		return nil
	}
	pubsub := b.redis.Subscribe(ctx, RedisChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", RedisChannel, err)
	}
	log.Info().Str("channel", RedisChannel).Msg("refresh relay subscribed")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.handleRelay(msg.Payload)
		}
	}
}

func (b *Bus) handleRelay(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.Warn().Err(err).Msg("failed to decode relayed refresh event")
		return
	}
	if msg.Origin == b.origin {
		return
	}
	var topics []Topic
	for _, t := range msg.Topics {
		if t.Valid() {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return
	}
	b.deliver(msg.Reason, dedupe(topics), msg.At)
}

func dedupe(topics []Topic) []Topic {
	if len(topics) < 2 {
		return topics
	}
	seen := make(map[Topic]bool, len(topics))
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
