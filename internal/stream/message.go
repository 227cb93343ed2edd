// Package stream delivers events to invokers from Redis Streams with
// at-least-once semantics.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/redeliver/internal/core/domain"
)

// Message field names.
const (
	FieldEvent     = "event"
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldEventType = "event_type"
)

// ErrUndecodable marks a stream message that can never become an Event.
var ErrUndecodable = errors.New("undecodable stream message")

// DecodeMessage turns a stream entry into an Event. An entry either carries
// the JSON-encoded event in the "event" field, or flat fields where
// "timestamp" is the event time and every other field lands in Data.
// deliveries is the pending delivery count, 0 when unknown.
func DecodeMessage(msg redis.XMessage, deliveries int64) (*domain.Event, error) {
	event := &domain.Event{}

	if raw, ok := msg.Values[FieldEvent]; ok {
		if err := json.Unmarshal([]byte(fmt.Sprint(raw)), event); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrUndecodable, msg.ID, err)
		}
	} else {
		ts, ok := msg.Values[FieldTimestamp]
		if !ok {
			return nil, fmt.Errorf("%w %s: missing %s", ErrUndecodable, msg.ID, FieldTimestamp)
		}
		event.Timestamp = fmt.Sprint(ts)
		event.Data = make(map[string]any, len(msg.Values))
		for k, v := range msg.Values {
			switch k {
			case FieldTimestamp:
			case FieldID:
				event.Context.EventID = fmt.Sprint(v)
			case FieldEventType:
				event.Context.EventType = fmt.Sprint(v)
			default:
				event.Data[k] = v
			}
		}
	}

	event.ID = msg.ID
	if deliveries > 0 {
		event.Context.Attempt = int(deliveries)
	}
	return event, nil
}

// encodeEvent is the inverse of DecodeMessage for the JSON form.
func encodeEvent(event *domain.Event) (map[string]any, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return map[string]any{FieldEvent: string(data)}, nil
}
