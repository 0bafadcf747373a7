package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"pagepilot/internal/domain"
)

// Handler dispatches one request message to a response. Implementations
// must never panic through this boundary; the coordinator guarantees a
// structured response for every message.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) domain.Response
}

// HandlerFunc adapts a function to the Handler interface, which lets
// main wire the server before the coordinator exists.
type HandlerFunc func(ctx context.Context, msg domain.Message) domain.Response

func (f HandlerFunc) Handle(ctx context.Context, msg domain.Message) domain.Response {
	return f(ctx, msg)
}

// Server owns the coordinator side of the socket: it accepts surface
// connections, feeds request frames to the handler, and fans broadcast
// frames out to every live connection.
type Server struct {
	path    string
	handler Handler
	logger  *slog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]*connWriter

	wg sync.WaitGroup
}

type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintf(w.conn, "%s\n", data)
	return err
}

// NewServer creates a server for the given socket path.
func NewServer(path string, handler Handler, logger *slog.Logger) (*Server, error) {
	if path == "" {
		return nil, errors.New("transport: socket path must not be empty")
	}
	if handler == nil {
		return nil, errors.New("transport: handler must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:    path,
		handler: handler,
		logger:  logger,
		conns:   make(map[net.Conn]*connWriter),
	}, nil
}

// Serve listens on the socket until ctx is cancelled. A stale socket
// file from a previous run is removed before listening.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("transport: listen on %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
	}()

	s.logger.Info("transport listening", "path", s.path)

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("transport: accept: %w", acceptErr)
		}

		writer := &connWriter{conn: conn}
		s.mu.Lock()
		s.conns[conn] = writer
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(ctx, conn, writer)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, writer *connWriter) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			s.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		if f.Kind != kindRequest {
			continue
		}

		msg := domain.Message{Type: f.Type, ID: f.ID, Target: f.Target, Payload: f.Payload}

		// Each request dispatches independently; one request awaiting
		// I/O must not stall the connection.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			resp := s.handler.Handle(ctx, msg)
			if err := writer.writeFrame(frame{Kind: kindResponse, ID: msg.ID, Response: &resp}); err != nil {
				s.logger.Warn("response write failed", "type", msg.Type, "err", err)
			}
		}()
	}
}

// Broadcast fans a notification out to every connected surface. It is
// best-effort by design: no listener and failed writes are both
// swallowed, because every requester also receives a direct response.
func (s *Server) Broadcast(target string, typ domain.MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("broadcast payload marshal failed", "type", typ, "err", err)
		return
	}
	f := frame{Kind: kindBroadcast, Type: typ, Target: target, Payload: payload}

	s.mu.Lock()
	writers := make([]*connWriter, 0, len(s.conns))
	for _, w := range s.conns {
		writers = append(writers, w)
	}
	s.mu.Unlock()

	for _, w := range writers {
		if writeErr := w.writeFrame(f); writeErr != nil {
			s.logger.Debug("broadcast delivery failed", "type", typ, "err", writeErr)
		}
	}
}
