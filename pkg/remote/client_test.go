package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/meditate001/meditate/common"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"127.0.0.1:8420", "ws://127.0.0.1:8420" + common.RPCPath, false},
		{"http://localhost:8420", "ws://localhost:8420" + common.RPCPath, false},
		{"https://example.com/", "wss://example.com" + common.RPCPath, false},
		{"ws://h:1/custom", "ws://h:1/custom", false},
		{"ftp://h:1", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Endpoint(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Endpoint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Endpoint(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// fakeServer records the last start params and pushes one tick and one
// completion for every timer.start.
type fakeServer struct {
	auth   chan string
	params chan *common.DurationParams
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case f.auth <- r.Header.Get("Authorization"):
	default:
	}
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		return
	}
	srv := jrpc2.NewServer(handler.Map{
		common.MethodGetVersion: handler.New(func(context.Context) (*common.VersionResult, error) {
			return &common.VersionResult{Version: "1.2.3"}, nil
		}),
		common.MethodTimerStart: handler.New(func(ctx context.Context, p *common.DurationParams) (*common.StatusResult, error) {
			f.params <- p
			s := jrpc2.ServerFromContext(ctx)
			_ = s.Notify(ctx, string(common.NotifyTick), &common.TickNotification{State: "running", Text: "05:00"})
			_ = s.Notify(ctx, string(common.NotifyComplete), &common.CompleteNotification{DurationMs: 300000, Chimed: true})
			return &common.StatusResult{State: "running", Text: "05:00"}, nil
		}),
	}, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(NewChannel(r.Context(), conn))
	_ = srv.Wait()
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	f := &fakeServer{auth: make(chan string, 1), params: make(chan *common.DurationParams, 4)}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts.URL
}

func TestClient_CallsAndPushes(t *testing.T) {
	f, addr := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ticks := make(chan common.TickNotification, 1)
	done := make(chan common.CompleteNotification, 1)
	c, err := Dial(ctx, addr, &Options{
		Secret:     "s3cret",
		OnTick:     func(n common.TickNotification) { ticks <- n },
		OnComplete: func(n common.CompleteNotification) { done <- n },
	})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer c.Close()
	if auth := <-f.auth; auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want Bearer s3cret", auth)
	}

	v, err := c.Version(ctx)
	if err != nil || v.Version != "1.2.3" {
		t.Fatalf("Version() = %+v, %v", v, err)
	}

	st, err := c.Start(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if st.Text != "05:00" {
		t.Errorf("Start().Text = %q, want 05:00", st.Text)
	}
	if p := <-f.params; p == nil || p.DurationMs == nil || *p.DurationMs != 300000 {
		t.Errorf("start params = %+v, want durationMs 300000", p)
	}

	if _, err := c.StartSelected(ctx); err != nil {
		t.Fatalf("StartSelected() error: %v", err)
	}
	if p := <-f.params; !p.Empty() {
		t.Errorf("StartSelected() sent params %+v, want none", p)
	}

	select {
	case n := <-ticks:
		if n.Text != "05:00" {
			t.Errorf("tick text = %q", n.Text)
		}
	case <-ctx.Done():
		t.Fatal("no tick push received")
	}
	select {
	case n := <-done:
		if !n.Chimed || n.DurationMs != 300000 {
			t.Errorf("completion = %+v", n)
		}
	case <-ctx.Done():
		t.Fatal("no completion push received")
	}
}

func TestClient_MethodError(t *testing.T) {
	_, addr := newFakeServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.Pause(ctx)
	var rpcErr *jrpc2.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Pause() error = %v, want *jrpc2.Error", err)
	}
	if rpcErr.Code != jrpc2.MethodNotFound {
		t.Errorf("code = %v, want MethodNotFound", rpcErr.Code)
	}
	if !strings.Contains(err.Error(), common.MethodTimerPause) {
		t.Errorf("error %q does not name the method", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, "127.0.0.1:1", nil); err == nil {
		t.Fatal("Dial() to a closed port succeeded")
	}
}
