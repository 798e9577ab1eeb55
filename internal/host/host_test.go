package host

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyline/internal/event"
	"partyline/internal/protocol"
)

// startHost runs a host on an ephemeral port with connection requests
// resolved by decide. Chat events are forwarded to the returned channel.
func startHost(t *testing.T, decide func(event.ConnectionRequest) bool) (*Host, string, <-chan string) {
	t.Helper()
	h := New(Config{Port: 0, Downloads: t.TempDir()})
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)

	chat := make(chan string, 64)
	go func() {
		for e := range h.Events() {
			switch e := e.(type) {
			case event.ConnectionRequest:
				e.Decision(decide(e))
			case event.Chat:
				chat <- e.Text
			}
		}
	}()

	port := h.listener.Addr().(*net.TCPAddr).Port
	return h, fmt.Sprintf("127.0.0.1:%d", port), chat
}

func dial(t *testing.T, addr, username string) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.Write([]byte(username))
	require.NoError(t, err)

	reply := make([]byte, 64)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := c.Read(reply)
	require.NoError(t, err)
	require.Equal(t, protocol.ConnectAccept, string(reply[:n]))
	require.NoError(t, c.SetReadDeadline(time.Time{}))

	return c, bufio.NewReader(c)
}

func readLine(t *testing.T, c net.Conn, r *bufio.Reader) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func waitChat(t *testing.T, chat <-chan string) string {
	t.Helper()
	select {
	case line := <-chat:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for chat event")
		return ""
	}
}

func TestHostEndToEnd(t *testing.T) {
	h, addr, chat := startHost(t, func(event.ConnectionRequest) bool { return true })

	aliceConn, aliceReader := dial(t, addr, "alice")
	assert.Equal(t, protocol.JoinedLine("alice"), waitChat(t, chat))

	bobConn, bobReader := dial(t, addr, "bob")
	assert.Equal(t, protocol.JoinedLine("bob"), waitChat(t, chat))
	assert.Equal(t, protocol.JoinedLine("bob")+"\n", readLine(t, aliceConn, aliceReader))

	// Chat from alice reaches bob with the sender prefix, and the host
	// observes it, but alice never gets her own line back.
	_, err := aliceConn.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "[alice] says: hello\n", readLine(t, bobConn, bobReader))
	assert.Equal(t, "[alice] says: hello", waitChat(t, chat))

	// Host chat reaches both, and shows up locally.
	require.NoError(t, h.SendText("welcome"))
	assert.Equal(t, "[HOST] says: welcome\n", readLine(t, aliceConn, aliceReader))
	assert.Equal(t, "[HOST] says: welcome\n", readLine(t, bobConn, bobReader))
	assert.Equal(t, "[HOST] says: welcome", waitChat(t, chat))

	// Disconnecting alice announces her departure to bob.
	aliceConn.Close()
	assert.Equal(t, protocol.LeftLine("alice")+"\n", readLine(t, bobConn, bobReader))
	assert.Equal(t, protocol.LeftLine("alice"), waitChat(t, chat))
}

func TestHostDeniesConnection(t *testing.T) {
	_, addr, _ := startHost(t, func(event.ConnectionRequest) bool { return false })

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("mallory"))
	require.NoError(t, err)

	reply := make([]byte, 64)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := c.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, protocol.ConnectDeny, string(reply[:n]))
}

func TestHostDeniesBlankIdentity(t *testing.T) {
	requested := make(chan struct{}, 1)
	_, addr, _ := startHost(t, func(event.ConnectionRequest) bool {
		requested <- struct{}{}
		return true
	})

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("   \n"))
	require.NoError(t, err)

	reply := make([]byte, 64)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := c.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, protocol.ConnectDeny, string(reply[:n]))
	// The blank identity never reaches the consent prompt.
	assert.Empty(t, requested)
}

func TestHostAnonymousClientNamedByAddress(t *testing.T) {
	requests := make(chan event.ConnectionRequest, 1)
	_, addr, chat := startHost(t, func(r event.ConnectionRequest) bool {
		requests <- r
		return true
	})

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte(protocol.ConnectRequest))
	require.NoError(t, err)

	r := <-requests
	assert.Empty(t, r.Username)

	joined := waitChat(t, chat)
	assert.Contains(t, joined, r.Addr)
}
