package game

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewConn(t *testing.T) {
	t.Parallel()
	session := &MockNetworkSession{}

	c := NewConn(session)

	assert.NotEmpty(t, c.ID)
	assert.Empty(t, c.RoomID)
	assert.NotNil(t, c.send)
}

func TestConn_ReadPump(t *testing.T) {
	t.Parallel()

	t.Run("feeds decoded messages then requests removal", func(t *testing.T) {
		t.Parallel()
		session := &MockNetworkSession{}
		session.On("Read").Return([]byte(`{"type":"message","data":{"text":"hi"}}`), nil).Once()
		session.On("Read").Return([]byte(`not json at all`), nil).Once()
		session.On("Read").Return([]byte{}, errors.New("connection reset")).Once()

		c := NewConn(session)
		inbox := make(chan envelope, 4)
		removals := make(chan *Conn, 1)

		c.ReadPump(inbox, removals)

		require.Len(t, inbox, 1, "undecodable frame is dropped")
		env := <-inbox
		assert.Same(t, c, env.conn)
		assert.Equal(t, MsgMessage, env.msg.Type)

		select {
		case removed := <-removals:
			assert.Same(t, c, removed)
		default:
			t.Fatal("removal was not requested")
		}
		session.AssertExpectations(t)
	})

	t.Run("flood past the burst is dropped before decoding", func(t *testing.T) {
		t.Parallel()
		frame := []byte(`{"type":"send-drawing","data":{"strokes":[]}}`)
		total := floodBurst + 50

		session := &MockNetworkSession{}
		session.On("Read").Return(frame, nil).Times(total)
		session.On("Read").Return([]byte{}, errors.New("closed")).Once()

		c := NewConn(session)
		inbox := make(chan envelope, total)
		removals := make(chan *Conn, 1)

		c.ReadPump(inbox, removals)

		// The bucket may refill a token or two while the loop runs, but
		// the bulk of the flood must be gone.
		assert.Less(t, len(inbox), total-40)
		assert.Greater(t, len(inbox), 0)
	})
}

func TestConn_WritePump(t *testing.T) {
	t.Parallel()

	t.Run("drains frames until the channel closes", func(t *testing.T) {
		t.Parallel()
		session := &MockNetworkSession{}
		session.On("Write", []byte("one")).Return(nil).Once()
		session.On("Write", []byte("two")).Return(nil).Once()
		session.On("Close", mock.Anything).Return()

		c := NewConn(session)
		require.NoError(t, c.Send([]byte("one")))
		require.NoError(t, c.Send([]byte("two")))
		c.Shutdown("")

		done := make(chan struct{})
		go func() {
			c.WritePump()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("write pump did not exit after shutdown")
		}
		session.AssertExpectations(t)
	})

	t.Run("exits on write failure", func(t *testing.T) {
		t.Parallel()
		session := &MockNetworkSession{}
		session.On("Write", mock.Anything).Return(errors.New("broken pipe")).Once()

		c := NewConn(session)
		require.NoError(t, c.Send([]byte("frame")))

		done := make(chan struct{})
		go func() {
			c.WritePump()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("write pump did not exit on error")
		}
	})

	t.Run("pings on request", func(t *testing.T) {
		t.Parallel()
		session := &MockNetworkSession{}
		pinged := make(chan struct{}, 1)
		session.On("Ping").Run(func(mock.Arguments) { pinged <- struct{}{} }).Return(nil).Once()
		session.On("Close", mock.Anything).Return()

		c := NewConn(session)
		c.RequestPing()

		go c.WritePump()
		select {
		case <-pinged:
		case <-time.After(2 * time.Second):
			t.Fatal("ping was never written")
		}
		c.Shutdown("")
	})
}

func TestConn_Send(t *testing.T) {
	t.Parallel()

	t.Run("nil frame is a no-op", func(t *testing.T) {
		t.Parallel()
		c := NewConn(&MockNetworkSession{})
		assert.NoError(t, c.Send(nil))
		assert.Empty(t, c.send)
	})

	t.Run("full buffer reports instead of blocking", func(t *testing.T) {
		t.Parallel()
		c := NewConn(&MockNetworkSession{})
		for i := 0; i < sendBufferSize; i++ {
			require.NoError(t, c.Send([]byte("frame")))
		}

		err := c.Send([]byte("one too many"))

		assert.ErrorIs(t, err, ErrSendBufferFull)
	})
}

func TestConn_Shutdown_Idempotent(t *testing.T) {
	t.Parallel()
	session := &MockNetworkSession{}
	session.On("Close", "bye").Return().Once()

	c := NewConn(session)
	c.Shutdown("bye")
	c.Shutdown("bye")

	session.AssertNumberOfCalls(t, "Close", 1)
}

func TestConn_RequestPing_Coalesces(t *testing.T) {
	t.Parallel()
	c := NewConn(&MockNetworkSession{})

	c.RequestPing()
	c.RequestPing()
	c.RequestPing()

	assert.Len(t, c.pings, 1)
}

func TestWireMessage_RoundTrip(t *testing.T) {
	t.Parallel()

	frame := makeEvent(EvtCorrectGuess, map[string]string{"username": "bob", "word": "tree"})
	require.NotNil(t, frame)

	var msg WireMessage
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, EvtCorrectGuess, msg.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "bob", payload["username"])
}
