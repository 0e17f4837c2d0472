package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type fakeResolver struct {
	name string
	err  error
}

func (f *fakeResolver) Container(string) (string, error) { return f.name, f.err }

type fakeSource struct {
	lines string
	err   error
}

func (f *fakeSource) Logs(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.lines)), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamer_StreamsLogLines(t *testing.T) {
	s := NewStreamer(
		&fakeResolver{name: "repobox-abc"},
		&fakeSource{lines: "cloning repo\nclone complete\n"},
		nil,
		testLogger(),
	)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=sb-1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}
	if string(data) != "cloning repo" {
		t.Errorf("first line = %q, want %q", data, "cloning repo")
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read second line: %v", err)
	}
	if string(data) != "clone complete" {
		t.Errorf("second line = %q, want %q", data, "clone complete")
	}
}

func TestStreamer_UnknownSandbox(t *testing.T) {
	s := NewStreamer(
		&fakeResolver{err: errors.New("sandbox not found")},
		&fakeSource{},
		nil,
		testLogger(),
	)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?id=missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestStreamer_MissingID(t *testing.T) {
	s := NewStreamer(&fakeResolver{name: "c"}, &fakeSource{}, nil, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestStreamer_RequiresToken(t *testing.T) {
	keys := map[string]string{"secret-key": "ci"}
	s := NewStreamer(&fakeResolver{name: "c"}, &fakeSource{lines: "x\n"}, keys, testLogger())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// No token.
	resp, err := http.Get(srv.URL + "/?id=sb-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// Valid token via query parameter.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=sb-1&token=secret-key"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}
