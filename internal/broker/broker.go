// Package broker provides the publish/consume client for the event stream.
// The concrete transport is a Kafka REST proxy, but nothing outside this
// package depends on that: any broker that can carry the same envelopes can
// be swapped in behind the Bus interface.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Bus is the process-wide event bus handle. A single instance is constructed
// at startup and passed to every component that publishes or consumes.
//
// Publish is fire-and-forget: it is called synchronously inside entity
// mutation paths, so it never returns an error. Failures are logged with
// topic and payload context and reported as false; the caller's data
// mutation stands regardless.
//
// Consume returns one bounded batch. A transport failure yields an empty
// batch and a non-nil error (already logged) so the dispatcher can tell an
// idle poll apart from a broker outage and back off.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) bool
	Consume(ctx context.Context, topic, group string) ([]Message, error)
}

// Message is one consumed record. Value holds the payload exactly as it came
// off the wire.
type Message struct {
	Key       json.RawMessage `json:"key"`
	Value     json.RawMessage `json:"value"`
	Partition int             `json:"partition"`
	Offset    int64           `json:"offset"`
}

// Decode unmarshals the message value into v. Producers disagree on whether
// the value is a JSON object or a JSON-encoded string containing one (the
// REST proxy accepts both), so a string value is unquoted first.
func (m Message) Decode(v any) error {
	raw := m.Value
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("unquote message value: %w", err)
		}
		raw = []byte(inner)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode message value: %w", err)
	}
	return nil
}
