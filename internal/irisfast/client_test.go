package irisfast

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type irisStub struct {
	mu      sync.Mutex
	calls   int
	status  []int
	replies []ReplyRequest
	headers map[string]string
}

func newIrisStub(t *testing.T, statuses ...int) (*Client, *irisStub) {
	t.Helper()
	stub := &irisStub{status: statuses}
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		stub.calls++
		stub.headers = map[string]string{"X-User-Id": string(ctx.Request.Header.Peek("X-User-Id"))}

		status := fasthttp.StatusOK
		if len(stub.status) > 0 {
			status = stub.status[0]
			stub.status = stub.status[1:]
		}
		ctx.SetStatusCode(status)
		switch string(ctx.Path()) {
		case "/config":
			ctx.SetBodyString(`{"port":3000,"polling_speed":100,"message_rate":50,"web_server_endpoint":"http://bot"}`)
		case "/reply":
			var req ReplyRequest
			_ = json.Unmarshal(ctx.PostBody(), &req)
			stub.replies = append(stub.replies, req)
			ctx.SetBodyString(`{"success":true}`)
		}
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	client := NewClient("http://iris.test/",
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": "bot-1", "X-Empty": " "} }),
		WithTimeout(2*time.Second),
	)
	return client, stub
}

func TestSendMessagePostsReply(t *testing.T) {
	client, stub := newIrisStub(t)
	if err := client.SendMessage(context.Background(), "room-1", "e4"); err != nil {
		t.Fatalf("send: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.replies) != 1 || stub.replies[0] != (ReplyRequest{Type: "text", Room: "room-1", Data: "e4"}) {
		t.Fatalf("unexpected replies: %+v", stub.replies)
	}
	if stub.headers["X-User-Id"] != "bot-1" {
		t.Fatalf("header provider not applied: %+v", stub.headers)
	}
}

func TestSendMessageIsNotRetried(t *testing.T) {
	client, stub := newIrisStub(t, 503, 200)
	err := client.SendMessage(context.Background(), "room-1", "hello")
	if !errors.Is(err, ErrIrisStatus) || !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("expected status error, got %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.calls != 1 {
		t.Fatalf("reply must not be retried, calls=%d", stub.calls)
	}
}

func TestGetConfigRetriesServerErrors(t *testing.T) {
	client, stub := newIrisStub(t, 502, 200)
	cfg, err := client.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.Port != 3000 || cfg.WebserverEndpoint != "http://bot" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.calls != 2 {
		t.Fatalf("expected one retry, calls=%d", stub.calls)
	}
}

func TestGetConfigDoesNotRetryClientErrors(t *testing.T) {
	client, stub := newIrisStub(t, 401)
	if _, err := client.GetConfig(context.Background()); !errors.Is(err, ErrIrisStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.calls != 1 {
		t.Fatalf("4xx must not be retried, calls=%d", stub.calls)
	}
}

func TestWebSocketDeliversMessagesAndReplies(t *testing.T) {
	replies := make(chan ReplyRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		sender := "alice"
		ctx := r.Context()
		if err := wsjson.Write(ctx, conn, Message{Msg: "!체스 시작", Room: "room-1", Sender: &sender}); err != nil {
			return
		}
		var reply ReplyRequest
		if err := wsjson.Read(ctx, conn, &reply); err == nil {
			replies <- reply
		}
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, 0)
	got := make(chan *Message, 1)
	ws.OnMessage(func(m *Message) { got <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = ws.Close(context.Background()) }()

	select {
	case m := <-got:
		if m.Room != "room-1" || m.SenderName() != "alice" {
			t.Fatalf("unexpected message: %+v", m)
		}
	case <-ctx.Done():
		t.Fatalf("no message received")
	}

	egress := NewEgress("auto", false, nil, ws, nil)
	if err := egress.SendText(ctx, "room-1", "reply"); err != nil {
		t.Fatalf("ws send: %v", err)
	}
	select {
	case r := <-replies:
		if r.Data != "reply" || r.Type != "text" {
			t.Fatalf("unexpected reply frame: %+v", r)
		}
	case <-ctx.Done():
		t.Fatalf("reply not received")
	}
}

func TestAutoEgressFallsBackToHTTP(t *testing.T) {
	client, stub := newIrisStub(t)
	ws := NewWebSocket("ws://unused", 0, 0)
	egress := NewEgress("auto", false, client, ws, nil)
	if err := egress.SendText(context.Background(), "room-1", "fallback"); err != nil {
		t.Fatalf("send: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.replies) != 1 || stub.replies[0].Data != "fallback" {
		t.Fatalf("expected http delivery, got %+v", stub.replies)
	}
}
