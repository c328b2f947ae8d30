package cmd

import (
	"bytes"
	"flag"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/meditate001/meditate/cmd/common"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/urfave/cli"
)

// captureOutput captures stdout and stderr during function execution.
// It redirects os.Stdout and os.Stderr to pipes, runs the provided function,
// and returns the captured output as strings. This is useful for testing
// CLI output without modifying the command implementations.
func captureOutput(f func()) (stdout, stderr string) {
	// Save original file descriptors
	oldStdout := os.Stdout
	oldStderr := os.Stderr

	// Create pipes for capturing output
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	// Run the function
	f()

	// Close writers and restore original file descriptors
	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	// Read captured output
	var bufOut, bufErr bytes.Buffer
	io.Copy(&bufOut, rOut)
	io.Copy(&bufErr, rErr)
	rOut.Close()
	rErr.Close()

	return bufOut.String(), bufErr.String()
}

// assertContains checks if output contains the expected substring.
// It reports a test failure with the actual output if the substring is not found.
func assertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// assertNotContains checks if output does NOT contain the specified substring.
// It reports a test failure if the substring is found in the output.
func assertNotContains(t *testing.T, output, notExpected string) {
	t.Helper()
	if strings.Contains(output, notExpected) {
		t.Errorf("expected output to NOT contain %q, got:\n%s", notExpected, output)
	}
}

// assertErrorFormat checks that error output follows the standard format:
// meditate: cmd[action]: msg
func assertErrorFormat(t *testing.T, output, cmd, action string) {
	t.Helper()
	pattern := "meditate: " + cmd + "[" + action + "]:"
	if !strings.Contains(output, pattern) {
		t.Errorf("expected error format %q, got:\n%s", pattern, output)
	}
}

// assertContainsAll checks that output contains all expected substrings.
// It reports a failure for each missing substring.
func assertContainsAll(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			t.Errorf("expected output to contain %q, got:\n%s", exp, output)
		}
	}
}

// newContext creates a CLI context for testing commands.
func newContext(app *cli.App, args []string, name string) *cli.Context {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	_ = set.Parse(args)
	ctx := cli.NewContext(app, set, nil)
	ctx.Command = cli.Command{Name: name}
	return ctx
}

// run executes the app with args, keeping help output from exiting the
// test binary.
func run(t *testing.T, args ...string) (stdout string) {
	t.Helper()
	restoreApp := common.SetShowAppHelpAndExit(func(*cli.Context, int) {})
	defer common.SetShowAppHelpAndExit(restoreApp)
	var err error
	stdout, _ = captureOutput(func() {
		err = Execute(append([]string{"meditate"}, args...), BuildArgs{Version: "1.0.0", BuildType: "test", Commit: "abc123"})
	})
	if err != nil {
		t.Fatalf("Execute(%v) error: %v", args, err)
	}
	return stdout
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// advanceUntil moves c forward by step every few milliseconds until done
// is closed or the test times out.
func advanceUntil(t *testing.T, c *testClock, step time.Duration, done <-chan struct{}, each func()) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-timeout:
			t.Fatal("timed out waiting for completion")
		case <-tick.C:
			c.Advance(step)
			if each != nil {
				each()
			}
		}
	}
}

// fakeOutput stands in for the speaker.
type fakeOutput struct {
	mu      sync.Mutex
	played  int
	initErr error
}

func (f *fakeOutput) Init(beep.SampleRate, int) error { return f.initErr }

func (f *fakeOutput) Play(_ beep.Streamer, done func()) {
	f.mu.Lock()
	f.played++
	f.mu.Unlock()
	done()
}

func (f *fakeOutput) Played() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played
}

// useFakeAudio routes chimes to a fake output for the duration of the test.
func useFakeAudio(t *testing.T, out *fakeOutput) {
	t.Helper()
	origOut, origTail := audioOutput, toneTail
	audioOutput = func() chime.Output { return out }
	toneTail = 0
	t.Cleanup(func() { audioOutput, toneTail = origOut, origTail })
}

// lockedBuffer is a bytes.Buffer safe to read while runSit writes to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
