package ws

import "time"

// ConnInfo carries the handshake metadata of one connection.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

type lifecyclePayload struct {
	WS       lifecycleDetail `json:"ws"`
	Identity connIdentity    `json:"identity"`
}

type lifecycleDetail struct {
	Kind       string `json:"kind"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type connIdentity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip"`
}

// eventPayload describes a connection lifecycle transition for the bus.
func (info ConnInfo) eventPayload(event, reason string) lifecyclePayload {
	var duration int64
	if !info.ConnectedAt.IsZero() {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	return lifecyclePayload{
		WS: lifecycleDetail{
			Kind:       wsKind,
			Event:      event,
			ConnID:     info.ConnID,
			DurationMS: duration,
			Reason:     reason,
		},
		Identity: connIdentity{
			UserID:   info.UserID,
			DeviceID: info.DeviceID,
			IP:       info.IP,
		},
	}
}
