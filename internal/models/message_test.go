package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOnlyAdvances(t *testing.T) {
	assert.True(t, StatusSent.CanAdvanceTo(StatusDelivered))
	assert.True(t, StatusSent.CanAdvanceTo(StatusRead))
	assert.True(t, StatusDelivered.CanAdvanceTo(StatusRead))

	assert.False(t, StatusRead.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusSent))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusDelivered))

	assert.Equal(t, []MessageStatus{StatusSent, StatusDelivered}, StatusRead.Predecessors())
	assert.Empty(t, StatusSent.Predecessors())
}

func TestPreviewTextFallsBackToLabels(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{"content", Message{Content: "  hi  "}, "hi"},
		{"image", Message{Type: MessageImage, File: &FileInfo{Name: "a.png"}}, "📷 Image"},
		{"video", Message{Type: MessageVideo, File: &FileInfo{Name: "a.mp4"}}, "🎥 Video"},
		{"named file", Message{Type: MessageFile, File: &FileInfo{Name: "report.pdf"}}, "report.pdf"},
		{"unnamed file", Message{Type: MessageFile, File: &FileInfo{}}, "File"},
		{"deleted", Message{Content: "secret", IsDeleted: true}, DeletedPlaceholder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.msg.PreviewText())
		})
	}
}

func TestMessageTypeForMime(t *testing.T) {
	assert.Equal(t, MessageImage, MessageTypeForMime("image/png"))
	assert.Equal(t, MessageVideo, MessageTypeForMime("video/mp4"))
	assert.Equal(t, MessageAudio, MessageTypeForMime("audio/ogg"))
	assert.Equal(t, MessageFile, MessageTypeForMime("application/pdf"))
}

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey("b", "a"), DirectKey("a", "b"))
}

func TestReadStateUpdateApply(t *testing.T) {
	now := time.Now()
	unread := false
	rs := ReadStateUpdate{LastReadAt: &now, IsManuallyUnread: &unread}.
		Apply(ReadState{IsManuallyUnread: true, IsPinned: true})

	assert.False(t, rs.IsManuallyUnread)
	assert.True(t, rs.IsPinned)
	assert.Equal(t, now, rs.Since())
}

func TestReadStateTogglePin(t *testing.T) {
	now := time.Now()
	rs := ReadState{}.TogglePin(now)
	assert.True(t, rs.IsPinned)
	require.NotNil(t, rs.PinnedAt)
	assert.Equal(t, now, *rs.PinnedAt)

	rs = rs.TogglePin(now.Add(time.Minute))
	assert.False(t, rs.IsPinned)
	assert.Nil(t, rs.PinnedAt)
}
