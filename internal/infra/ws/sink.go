// Package ws provides the shared outbound side of a client websocket.
//
// A Sink is created by the session layer when a peer connection is accepted
// and is shared by every task that pushes frames to that peer. Writes go
// through an exclusive gate held for the whole frame, so concurrent
// producers never interleave partial frames.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/vietddude/batcher/internal/core/retry"
	"github.com/vietddude/batcher/internal/metrics"
)

// ErrSinkClosed is returned when sending through a sink that was closed.
var ErrSinkClosed = errors.New("ws: sink closed")

// Conn is the write half of a websocket connection. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Sink serializes writes to one peer.
type Sink struct {
	id     uuid.UUID
	conn   Conn
	gate   *semaphore.Weighted
	closed atomic.Bool
	log    *slog.Logger
}

// NewSink wraps an established connection.
func NewSink(conn Conn) *Sink {
	id := uuid.New()
	return &Sink{
		id:   id,
		conn: conn,
		gate: semaphore.NewWeighted(1),
		log:  slog.Default().With("peer", id.String()),
	}
}

// ID identifies the peer in logs and registries.
func (s *Sink) ID() uuid.UUID {
	return s.id
}

// Close marks the sink closed. The underlying connection is owned by the
// session layer and is not touched.
func (s *Sink) Close() {
	s.closed.Store(true)
}

// SendMessage encodes msg and sends it as a binary frame. Delivery is best
// effort: failures are logged and dropped.
func (s *Sink) SendMessage(ctx context.Context, msg any) {
	payload, err := Encode(msg)
	if err != nil {
		metrics.SinkSendsTotal.WithLabelValues("message", "encode_error").Inc()
		s.log.Error("Error while serializing message", "error", err)
		return
	}
	if err := s.write(ctx, payload); err != nil {
		metrics.SinkSendsTotal.WithLabelValues("message", "error").Inc()
		s.log.Error("Error while sending message", "error", err)
		return
	}
	metrics.SinkSendsTotal.WithLabelValues("message", "ok").Inc()
}

// SendResponseRetryable sends an already encoded response as a binary frame.
// A connection that is already closed fails permanently; any other write
// failure is transient, so callers can wrap this in retry.Do.
func (s *Sink) SendResponseRetryable(ctx context.Context, payload []byte) error {
	err := s.write(ctx, payload)
	switch {
	case err == nil:
		metrics.SinkSendsTotal.WithLabelValues("response", "ok").Inc()
		return nil
	case isClosed(err):
		metrics.SinkSendsTotal.WithLabelValues("response", "closed").Inc()
		return retry.Permanent(err)
	default:
		metrics.SinkSendsTotal.WithLabelValues("response", "error").Inc()
		return retry.Transient(err)
	}
}

func (s *Sink) write(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire sink: %w", err)
	}
	defer s.gate.Release(1)

	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func isClosed(err error) bool {
	return errors.Is(err, ErrSinkClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed)
}
