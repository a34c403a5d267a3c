package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	req.Header.Set("X-Device-Id", "phone")
	req.Header.Set("X-Request-Id", "req-1")

	meta := MetaFromRequest(req)
	assert.Equal(t, RequestMeta{DeviceID: "phone", IP: "10.0.0.9", RequestID: "req-1"}, meta)
}

func TestMetaFromRequestPrefersForwardedIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	req.Header.Set("X-Real-Ip", "198.51.100.2")
	assert.Equal(t, "203.0.113.7", MetaFromRequest(req).IP)

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.2", MetaFromRequest(req).IP)
}

func TestMetaFromRequestGeneratesRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.NotEmpty(t, MetaFromRequest(req).RequestID)
}
