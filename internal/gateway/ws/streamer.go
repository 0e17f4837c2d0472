// Package ws streams live container logs over WebSocket. A client connects
// with a sandbox ID, and every log line the container writes is pushed as a
// text message until the sandbox stops or the client disconnects.
package ws

import (
	"bufio"
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// ContainerResolver maps a sandbox ID to its container name.
// Returns an error when the sandbox is unknown or no longer running.
type ContainerResolver interface {
	Container(id string) (string, error)
}

// LogSource follows a container's log output. The returned reader blocks
// until new output arrives; Close stops the follow.
type LogSource interface {
	Logs(ctx context.Context, name string) (io.ReadCloser, error)
}

// Streamer is the WebSocket log streaming endpoint.
type Streamer struct {
	resolver ContainerResolver
	source   LogSource
	apiKeys  map[string]string // Same key → principal mapping as the HTTP API. Empty = auth disabled.
	logger   *slog.Logger
}

// NewStreamer creates a log streamer backed by the given resolver and log source.
func NewStreamer(resolver ContainerResolver, source LogSource, apiKeys map[string]string, logger *slog.Logger) *Streamer {
	return &Streamer{
		resolver: resolver,
		source:   source,
		apiKeys:  apiKeys,
		logger:   logger,
	}
}

// Handler returns the http.Handler for WebSocket upgrade requests.
// Clients pass the sandbox ID via the "id" query parameter and the API key
// via "token" or the Authorization header.
func (s *Streamer) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Streamer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id query parameter is required", http.StatusBadRequest)
		return
	}

	name, err := s.resolver.Container(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.stream(r.Context(), conn, id, name)
}

// stream copies container log lines to the WebSocket until either side closes.
func (s *Streamer) stream(ctx context.Context, conn *websocket.Conn, id, name string) {
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	logs, err := s.source.Logs(ctx, name)
	if err != nil {
		s.logger.Error("log follow failed",
			slog.String("sandbox_id", id),
			slog.String("error", err.Error()),
		)
		conn.Close(websocket.StatusInternalError, "log stream unavailable")
		return
	}
	defer logs.Close()

	// Close the log follow when the client goes away, otherwise the scanner
	// below blocks forever on a quiet container.
	go func() {
		<-ctx.Done()
		logs.Close()
	}()

	s.logger.Info("log stream opened", slog.String("sandbox_id", id))

	scanner := bufio.NewScanner(logs)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := conn.Write(ctx, websocket.MessageText, scanner.Bytes()); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Warn("log stream write failed",
					slog.String("sandbox_id", id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}

	s.logger.Info("log stream closed", slog.String("sandbox_id", id))
}

func (s *Streamer) authorized(r *http.Request) bool {
	if len(s.apiKeys) == 0 {
		return true
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	for key := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return true
		}
	}
	return false
}
