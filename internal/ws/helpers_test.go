package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameIDFromUndecodableFrames(t *testing.T) {
	cases := map[string]string{
		`{"id":"2","event":`:              "2",
		`{"event":42,"id":"3"}`:           "3",
		`{"data":{"id":"inner"},"id":"4"`: "4",
		`{"event":"send_message"`:         "",
		`{"id":7}`:                        "",
		`["id","5"]`:                      "",
		`not json`:                        "",
		``:                                "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, frameID([]byte(raw)), raw)
	}
}
