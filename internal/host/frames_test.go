package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/store/memory"
)

func newPushTestServer(t *testing.T, push config.PushSettings) (*Service, *httptest.Server) {
	t.Helper()
	settings := config.HostSettings{
		AdvertisedOrigin: testAdvertisedOrigin,
		Push:             push,
	}
	svc := NewService(settings, memory.New(), NewRegistry(nil))
	t.Cleanup(svc.Close)

	server := httptest.NewServer(NewHandler(svc))
	t.Cleanup(server.Close)
	return svc, server
}

func dialFrame(t *testing.T, ctx context.Context, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + schema.FrameEndpoint
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func subscribeFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()
	payload, err := schema.EncodeMessage(schema.SubscribeToDataURL{})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func waitForFrameCount(t *testing.T, frames *Frames, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frames.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("frame count = %d, want %d", frames.Count(), want)
}

func readPush(t *testing.T, ctx context.Context, conn *websocket.Conn) schema.SetDataURL {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	typ, data, err := conn.Read(readCtx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	msg, err := schema.DecodeMessage(data)
	require.NoError(t, err)
	push, ok := msg.(schema.SetDataURL)
	require.True(t, ok, "expected set-data-url, got %T", msg)
	return push
}

func TestFrameSubscribeReceivesPush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newTestServer(t)
	conn := dialFrame(t, ctx, server)
	subscribeFrame(t, ctx, conn)
	waitForFrameCount(t, svc.Frames(), 1)

	svc.Publisher().Publish(ctx, "ocean-temps", 3)

	push := readPush(t, ctx, conn)
	require.Equal(t, testAdvertisedOrigin, push.Origin)
	require.Equal(t, testAdvertisedOrigin+"/data/ocean-temps/3.json", push.DataURL)
}

func TestFrameMustSubscribeFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newTestServer(t)
	conn := dialFrame(t, ctx, server)

	payload, err := schema.EncodeMessage(schema.SetDataURL{
		Origin:  testAdvertisedOrigin,
		DataURL: testAdvertisedOrigin + "/data/x/1.json",
	})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	require.Equal(t, 0, svc.Frames().Count())
}

func TestFrameRejectsBinarySubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newTestServer(t)
	conn := dialFrame(t, ctx, server)

	payload, err := schema.EncodeMessage(schema.SubscribeToDataURL{})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, payload))

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	require.Equal(t, 0, svc.Frames().Count())
}

func TestUpdatePushesToSubscribedFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newTestServer(t)

	resp := postJSON(t, server.URL+datasetsPath, depthPayload("ocean-temps"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conn := dialFrame(t, ctx, server)
	subscribeFrame(t, ctx, conn)
	waitForFrameCount(t, svc.Frames(), 1)

	update := `{"table": {"columns": [{"name": "depth", "values": [5, 6, 7]}]}}`
	resp = postJSON(t, server.URL+datasetDetailPrefix+"ocean-temps", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	push := readPush(t, ctx, conn)
	require.Equal(t, testAdvertisedOrigin, push.Origin)
	require.Equal(t, testAdvertisedOrigin+"/data/ocean-temps/2.json", push.DataURL)
}

func TestCreateDoesNotPush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newTestServer(t)
	conn := dialFrame(t, ctx, server)
	subscribeFrame(t, ctx, conn)
	waitForFrameCount(t, svc.Frames(), 1)

	resp := postJSON(t, server.URL+datasetsPath, depthPayload("ocean-temps"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	readCtx, readCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitedFrameDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newPushTestServer(t, config.PushSettings{
		Rate:          1,
		Burst:         1,
		FanoutWorkers: 2,
	})
	conn := dialFrame(t, ctx, server)
	subscribeFrame(t, ctx, conn)
	waitForFrameCount(t, svc.Frames(), 1)

	svc.Publisher().Publish(ctx, "ocean-temps", 1)
	svc.Publisher().Publish(ctx, "ocean-temps", 2)
	waitForFrameCount(t, svc.Frames(), 0)

	push := readPush(t, ctx, conn)
	require.Equal(t, testAdvertisedOrigin+"/data/ocean-temps/1.json", push.DataURL)

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestServiceCloseDisconnectsFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, server := newTestServer(t)
	conn := dialFrame(t, ctx, server)
	subscribeFrame(t, ctx, conn)
	waitForFrameCount(t, svc.Frames(), 1)

	svc.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	require.Equal(t, 0, svc.Frames().Count())
}
