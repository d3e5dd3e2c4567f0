package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/embedviz/vizframe/internal/schema"
)

type wireFrame struct {
	typ     websocket.MessageType
	payload []byte
}

// newParentServer accepts bridge connections, captures the first message of
// each connection on the returned channel, and then hands the connection to
// script.
func newParentServer(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) (*httptest.Server, <-chan []byte) {
	t.Helper()
	firstMessages := make(chan []byte, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != schema.FrameEndpoint {
			t.Errorf("frame endpoint path: got %s want %s", r.URL.Path, schema.FrameEndpoint)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		readCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}
		firstMessages <- append([]byte(nil), data...)

		if script != nil {
			script(r.Context(), conn)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, firstMessages
}

// pump forwards frames from outbound to the connection until the connection
// or the context goes away.
func pump(ctx context.Context, conn *websocket.Conn, outbound <-chan wireFrame) {
	for {
		select {
		case frame := <-outbound:
			writeCtx, cancel := context.WithTimeout(ctx, time.Second)
			err := conn.Write(writeCtx, frame.typ, frame.payload)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func textFrame(t *testing.T, msg schema.Message) wireFrame {
	t.Helper()
	payload, err := schema.EncodeMessage(msg)
	require.NoError(t, err)
	return wireFrame{typ: websocket.MessageText, payload: payload}
}

func waitRaw(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server-side message")
		return nil
	}
}

func waitURL(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for applied data URL")
		return ""
	}
}

func TestBridgeAnnouncesSubscriptionBeforeApplying(t *testing.T) {
	outbound := make(chan wireFrame, 8)
	srv, firstMessages := newParentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		pump(ctx, conn, outbound)
	})
	origin := srv.URL

	applied := make(chan string, 8)
	b := New(context.Background(), origin, 5*time.Second, nil, func(u string) { applied <- u })
	t.Cleanup(b.Close)

	require.True(t, b.Active())
	require.NoError(t, b.Start())

	msg, err := schema.DecodeMessage(waitRaw(t, firstMessages))
	require.NoError(t, err)
	require.IsType(t, schema.SubscribeToDataURL{}, msg)

	outbound <- textFrame(t, schema.SetDataURL{Origin: origin, DataURL: "https://data.example/one.json"})
	require.Equal(t, "https://data.example/one.json", waitURL(t, applied))
}

func TestBridgeWithoutOriginIsInactive(t *testing.T) {
	called := atomic.Bool{}
	b := New(context.Background(), "  ", time.Second, nil, func(string) { called.Store(true) })
	t.Cleanup(b.Close)

	require.False(t, b.Active())
	require.NoError(t, b.Start())
	require.False(t, called.Load())
}

func TestBridgeDropsInvalidMessagesSilently(t *testing.T) {
	outbound := make(chan wireFrame, 16)
	srv, firstMessages := newParentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		pump(ctx, conn, outbound)
	})
	origin := srv.URL

	applied := make(chan string, 8)
	b := New(context.Background(), origin, 5*time.Second, nil, func(u string) { applied <- u })
	t.Cleanup(b.Close)
	require.NoError(t, b.Start())
	waitRaw(t, firstMessages)

	good := textFrame(t, schema.SetDataURL{Origin: origin, DataURL: "https://data.example/good.json"})

	// Everything before the final frame must be dropped: wrong origin,
	// malformed JSON, unknown kind, missing dataUrl, binary payload.
	outbound <- textFrame(t, schema.SetDataURL{Origin: "https://somewhere.else", DataURL: "https://data.example/evil.json"})
	outbound <- wireFrame{typ: websocket.MessageText, payload: []byte(`{not json`)}
	outbound <- wireFrame{typ: websocket.MessageText, payload: []byte(`{"type":"rotate-api-key","dataUrl":"https://data.example/x.json"}`)}
	outbound <- wireFrame{typ: websocket.MessageText, payload: []byte(`{"type":"set-data-url","origin":"` + origin + `"}`)}
	outbound <- wireFrame{typ: websocket.MessageBinary, payload: good.payload}
	outbound <- good

	require.Equal(t, "https://data.example/good.json", waitURL(t, applied))
	select {
	case u := <-applied:
		t.Fatalf("unexpected extra apply: %s", u)
	default:
	}
}

func TestBridgeReconnectsAndResubscribes(t *testing.T) {
	outbound := make(chan wireFrame, 8)
	var connCount atomic.Int64
	srv, firstMessages := newParentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if connCount.Add(1) == 1 {
			// Drop the first connection right after the handshake.
			return
		}
		pump(ctx, conn, outbound)
	})
	origin := srv.URL

	applied := make(chan string, 8)
	b := New(context.Background(), origin, 5*time.Second, nil, func(u string) { applied <- u })
	t.Cleanup(b.Close)
	require.NoError(t, b.Start())

	first, err := schema.DecodeMessage(waitRaw(t, firstMessages))
	require.NoError(t, err)
	require.IsType(t, schema.SubscribeToDataURL{}, first)

	second, err := schema.DecodeMessage(waitRaw(t, firstMessages))
	require.NoError(t, err)
	require.IsType(t, schema.SubscribeToDataURL{}, second)

	outbound <- textFrame(t, schema.SetDataURL{Origin: origin, DataURL: "https://data.example/after-reconnect.json"})
	require.Equal(t, "https://data.example/after-reconnect.json", waitURL(t, applied))
	require.GreaterOrEqual(t, connCount.Load(), int64(2))
}

func TestBridgeCloseTearsDownConnection(t *testing.T) {
	readErrs := make(chan error, 1)
	srv, firstMessages := newParentServer(t, func(ctx context.Context, conn *websocket.Conn) {
		readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, _, err := conn.Read(readCtx)
		readErrs <- err
	})

	b := New(context.Background(), srv.URL, 5*time.Second, nil, nil)
	require.NoError(t, b.Start())
	waitRaw(t, firstMessages)

	b.Close()

	select {
	case err := <-readErrs:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the close")
	}
}

func TestBridgeStartTimesOutWhenParentUnreachable(t *testing.T) {
	b := New(context.Background(), "http://127.0.0.1:1", 200*time.Millisecond, nil, nil)
	t.Cleanup(b.Close)

	err := b.Start()
	require.Error(t, err)
}
