package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// waitRunning polls until the runner reports it is running.
func waitRunning(t *testing.T, r *Runner) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !r.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("runner did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		wantHost string
		wantPort int
	}{
		{"nil config", nil, DefaultHost, 0},
		{"port only", &Config{Port: 8420}, DefaultHost, 8420},
		{"explicit host", &Config{Host: "0.0.0.0", Port: 4000}, "0.0.0.0", 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := New(tt.config, nil)
			if runner == nil {
				t.Fatal("New() returned nil runner")
			}
			if runner.Config().Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", runner.Config().Host, tt.wantHost)
			}
			if runner.Config().Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", runner.Config().Port, tt.wantPort)
			}
		})
	}
}

func TestFormatListenAddress(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 0, "127.0.0.1:0"},
		{"127.0.0.1", -1, "127.0.0.1:0"},
		{"::1", 8420, "[::1]:8420"},
	}
	for _, tt := range tests {
		if got := formatListenAddress(tt.host, tt.port); got != tt.want {
			t.Errorf("formatListenAddress(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

// TestRunner_Start_ServesOnListener tests that Start() hands the listener to Serve.
func TestRunner_Start_ServesOnListener(t *testing.T) {
	var listenerCreated atomic.Bool
	runner := New(&Config{}, &Dependencies{
		ListenerFactory: func(network, address string) (net.Listener, error) {
			listenerCreated.Store(true)
			return net.Listen(network, address)
		},
		Serve: func(l net.Listener) error {
			srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})}
			err := srv.Serve(l)
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Start(ctx)
	}()
	waitRunning(t, runner)

	if !listenerCreated.Load() {
		t.Error("Start() did not create listener")
	}
	addr := runner.Addr()
	if addr == nil {
		t.Fatal("Addr() is nil while running")
	}
	resp, err := http.Get("http://" + addr.String())
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start() = %v, want context.Canceled", err)
	}
	if runner.Addr() != nil {
		t.Error("Addr() should be nil after stop")
	}
}

// TestRunner_Start_ServeError tests that a failing Serve ends Start.
func TestRunner_Start_ServeError(t *testing.T) {
	serveErr := errors.New("serve failed")
	runner := New(nil, &Dependencies{
		Serve: func(net.Listener) error { return serveErr },
	})

	select {
	case err := <-startAsync(context.Background(), runner):
		if !errors.Is(err, serveErr) {
			t.Fatalf("Start() = %v, want %v", err, serveErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Serve failed")
	}
	if runner.IsRunning() {
		t.Error("runner still running after Serve failed")
	}
}

func startAsync(ctx context.Context, r *Runner) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()
	return errCh
}

// TestRunner_Start_ListenError tests that listener failures are returned.
func TestRunner_Start_ListenError(t *testing.T) {
	listenErr := errors.New("address in use")
	runner := New(nil, &Dependencies{
		ListenerFactory: func(string, string) (net.Listener, error) { return nil, listenErr },
	})
	if err := runner.Start(context.Background()); !errors.Is(err, listenErr) {
		t.Fatalf("Start() = %v, want %v", err, listenErr)
	}
	if runner.IsRunning() {
		t.Error("runner running after listen failure")
	}
}

// TestRunner_Start_ReturnsErrorIfAlreadyRunning tests that Start() returns an error
// if the runner is already started.
func TestRunner_Start_ReturnsErrorIfAlreadyRunning(t *testing.T) {
	runner := New(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startAsync(ctx, runner)
	waitRunning(t, runner)

	err := runner.Start(ctx)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() error = %v, want ErrAlreadyRunning", err)
	}
}

// TestRunner_Shutdown tests that Shutdown() gracefully stops the runner.
func TestRunner_Shutdown(t *testing.T) {
	var shutdownCalled atomic.Bool
	runner := New(nil, &Dependencies{
		ShutdownFunc: func() error {
			shutdownCalled.Store(true)
			return nil
		},
	})

	errCh := startAsync(context.Background(), runner)
	waitRunning(t, runner)

	if err := runner.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !shutdownCalled.Load() {
		t.Error("Shutdown() did not call shutdown function")
	}
	if runner.IsRunning() {
		t.Error("Shutdown() did not stop the runner")
	}
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Shutdown")
	}
}

// TestRunner_Shutdown_WithTimeout tests that Shutdown() respects timeout.
func TestRunner_Shutdown_WithTimeout(t *testing.T) {
	runner := New(&Config{ShutdownTimeout: 100 * time.Millisecond}, &Dependencies{
		ShutdownFunc: func() error {
			time.Sleep(500 * time.Millisecond)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startAsync(ctx, runner)
	waitRunning(t, runner)

	err := runner.Shutdown()
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("Shutdown() error = %v, want ErrShutdownTimeout", err)
	}
}

// TestRunner_Shutdown_NotRunning tests that Shutdown() handles not-running state.
func TestRunner_Shutdown_NotRunning(t *testing.T) {
	runner := New(nil, nil)

	err := runner.Shutdown()
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Shutdown() error = %v, want ErrNotRunning", err)
	}
}

// TestRunner_ExecuteWithTimeout_ReturnsError tests that executeWithTimeout returns
// errors from the function when it completes within the timeout.
func TestRunner_ExecuteWithTimeout_ReturnsError(t *testing.T) {
	expectedErr := errors.New("shutdown error")
	runner := New(&Config{ShutdownTimeout: time.Second}, &Dependencies{
		ShutdownFunc: func() error {
			return expectedErr
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startAsync(ctx, runner)
	waitRunning(t, runner)

	err := runner.Shutdown()
	if !errors.Is(err, expectedErr) {
		t.Errorf("Shutdown() error = %v, want %v", err, expectedErr)
	}
}
