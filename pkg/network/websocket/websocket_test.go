package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blastzone/netplay/pkg/logger"
)

func echoServer(t *testing.T) *httptest.Server {
	up := Upgrader("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := NewServer(up, w, r, 0, logger.Nop())
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ws.OnMessage = func(m []byte) { _ = ws.Write(m) }
		ws.Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEcho(t *testing.T) {
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := NewClient(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan string, 1)
	ws.OnMessage = func(m []byte) { got <- string(m) }
	ws.Start()

	if err := ws.Write([]byte(`{"t":"offer"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-got:
		if m != `{"t":"offer"}` {
			t.Errorf("echo %v", m)
		}
	case <-ctx.Done():
		t.Fatalf("no echo")
	}

	ws.Close()
	select {
	case <-ws.Done:
	case <-ctx.Done():
		t.Fatalf("socket did not stop")
	}
	if err := ws.Write([]byte("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close: %v", err)
	}
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		allowed string
		origin  string
		ok      bool
	}{
		{allowed: "", origin: "http://any", ok: true},
		{allowed: "http://game", origin: "http://game", ok: true},
		{allowed: "http://game", origin: "http://evil", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.allowed+"<-"+tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Origin", tt.origin)
			if Upgrader(tt.allowed).CheckOrigin(r) != tt.ok {
				t.Errorf("expected %v", tt.ok)
			}
		})
	}
}
