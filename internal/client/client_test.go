// ABOUTME: Tests for the recorder client against a real control server
// ABOUTME: Covers the handshake, event routing and HTTP error mapping
package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/control"
	"github.com/Resonate-Protocol/resonate-recorder/internal/protocol"
	"github.com/Resonate-Protocol/resonate-recorder/internal/recorder"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio"
	"github.com/Resonate-Protocol/resonate-recorder/pkg/audio/tap"
)

func newServer(t *testing.T) (*recorder.Recorder, string) {
	t.Helper()
	tp := tap.New(tap.Options{Dir: t.TempDir()})
	if _, err := tp.Configure(audio.NewPCM16Format(8000, 1)); err != nil {
		t.Fatal(err)
	}
	rec := recorder.New(tp, recorder.Options{})
	srv := control.New(control.Config{Name: "studio"}, rec, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
		rec.Close(context.Background())
	})
	return rec, ts.Listener.Addr().String()
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		var zero T
		return zero
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(Config{ServerAddr: "localhost:8927"})
	if c.config.ServerAddr != "localhost:8927" {
		t.Errorf("expected server addr localhost:8927, got %s", c.config.ServerAddr)
	}
	if c.IsConnected() {
		t.Error("expected new client to be disconnected")
	}
}

func TestConnectAndFollow(t *testing.T) {
	rec, addr := newServer(t)

	c := NewClient(Config{ServerAddr: addr})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if got := c.Server().Name; got != "studio" {
		t.Errorf("server name = %q, want studio", got)
	}

	ctx := context.Background()
	started, err := c.StartCapture(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ev := receive(t, c.CaptureStarted); ev.SessionID != started.SessionID {
		t.Errorf("event session = %q, want %q", ev.SessionID, started.SessionID)
	}

	chunk := bytes.Repeat([]byte{0, 1}, 800)
	for i := 0; i < 10; i++ {
		rec.Tap().ProcessFrames(chunk)
		rec.Tap().DrainOutput()
	}

	job, err := c.StopAndTranscode(ctx, protocol.TranscodeRequest{Codec: "wav"})
	if err != nil {
		t.Fatal(err)
	}
	if stopped := receive(t, c.CaptureStopped); stopped.BodyBytes != 16000 {
		t.Errorf("stopped body = %d, want 16000", stopped.BodyBytes)
	}
	done := receive(t, c.Done)
	if done.JobID != job.JobID || done.Record.CompressedPath == "" {
		t.Errorf("done = %+v", done)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Jobs) != 1 || !st.Jobs[0].Done {
		t.Errorf("status jobs = %+v", st.Jobs)
	}
}

func TestAPIError(t *testing.T) {
	_, addr := newServer(t)
	c := NewClient(Config{ServerAddr: addr})

	_, err := c.StopCapture(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Code != http.StatusConflict || apiErr.Message == "" {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestConnectRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.Listener.Addr().String()
	ts.Close()

	c := NewClient(Config{ServerAddr: addr})
	if err := c.Connect(); err == nil {
		c.Close()
		t.Fatal("expected dial error")
	}
}
