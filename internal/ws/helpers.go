package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"chat-core/internal/models"
	"chat-core/internal/observability"
)

const (
	wsKind       = "chat"
	wsRoutingKey = "ws_events.chats"
)

var errSendQueueFull = errors.New("send queue full")

func newConnID() string {
	return uuid.NewString()
}

// frameID recovers the correlation id of a frame that failed to decode so
// the client still gets an ack. Top-level keys are scanned in order until
// "id" or the first syntax error.
func frameID(data []byte) string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return ""
		}
		if key == "id" {
			var id string
			if err := dec.Decode(&id); err != nil {
				return ""
			}
			return id
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return ""
		}
	}
	return ""
}

func encodeEvent(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(models.Outbound{Event: event, Data: payload})
}

func encodeAck(id string, ack models.Ack) ([]byte, error) {
	return json.Marshal(models.AckFrame{Ack: id, Data: ack})
}

func publishWSEvent(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(wsKind, event)
	envelope := observability.NewEventEnvelope("ws_events", event, info.eventPayload(event, reason))
	_ = observability.PublishEvent(ctx, wsRoutingKey, envelope, observability.BuildHeaders(info.RequestID, info.TraceID))
}
