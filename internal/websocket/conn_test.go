package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-rm/marketchat/internal/auth"
)

func TestNewConnection_HasUniqueID(t *testing.T) {
	a := NewConnection(auth.Identity{ID: "user-1"})
	b := NewConnection(auth.Identity{ID: "user-1"})

	assert.NotEmpty(t, a.ConnectionID)
	assert.NotEqual(t, a.ConnectionID, b.ConnectionID)
}

func TestJoinRoom_TracksMembership(t *testing.T) {
	conn := NewConnection(auth.Identity{ID: "user-1"})

	assert.False(t, conn.HasJoined("conv-1"))

	conn.JoinRoom("conv-1")
	conn.JoinRoom("conv-2")
	conn.JoinRoom("conv-1") // idempotent

	assert.True(t, conn.HasJoined("conv-1"))
	assert.True(t, conn.HasJoined("conv-2"))
	assert.False(t, conn.HasJoined("conv-3"))
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, conn.Rooms())
}

func TestSafeSend_DeliversToChannel(t *testing.T) {
	conn := NewConnection(auth.Identity{ID: "user-1"})

	require.True(t, conn.SafeSend([]byte("frame")))

	select {
	case frame := <-conn.ReceiveForTest():
		assert.Equal(t, []byte("frame"), frame)
	default:
		t.Fatal("expected a buffered frame")
	}
}

func TestSafeSend_RefusedWhenClosing(t *testing.T) {
	conn := NewConnection(auth.Identity{ID: "user-1"})
	conn.SetClosing()

	assert.False(t, conn.SafeSend([]byte("frame")))
}

func TestSafeSend_DropsWhenBufferFull(t *testing.T) {
	conn := NewConnection(auth.Identity{ID: "user-1"})

	// Fill the send buffer
	for conn.SafeSend([]byte("x")) {
	}

	assert.False(t, conn.SafeSend([]byte("overflow")))
}

func TestClose_WithoutSocketIsNoop(t *testing.T) {
	conn := NewConnection(auth.Identity{ID: "user-1"})
	assert.NoError(t, conn.Close())
}
