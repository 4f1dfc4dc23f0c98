// Package grpcconn implements subscription.Connection over a single
// bidirectional gRPC streaming RPC. The wire message is a plain
// structpb.Struct envelope rather than a .proto-generated type: this
// transport is one concrete implementation of the connection port the
// core state machine talks to (§4.4), not part of the core itself, and a
// generic envelope keeps it usable for any Codec instantiation without
// per-domain generated code.
package grpcconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/get-eventually/go-catchup/logger"
	"github.com/get-eventually/go-catchup/subscription"
)

const (
	serviceName = "catchup.v1.Subscriptions"
	methodName  = "Stream"
	fullMethod  = "/" + serviceName + "/" + methodName
)

var streamDesc = grpc.StreamDesc{
	StreamName:    methodName,
	ServerStreams: true,
	ClientStreams: true,
}

// Codec converts positions and events to and from the structpb.Struct
// envelope carried over the wire. The core state machine has no
// compile-time knowledge of either shape, so this transport needs one
// supplied by the caller.
type Codec[P any, E subscription.Event[P]] struct {
	EncodePosition func(P) *structpb.Value
	DecodePosition func(*structpb.Value) (P, error)
	EncodeEvent    func(E) (*structpb.Struct, error)
	DecodeEvent    func(*structpb.Struct) (E, error)
}

// Connection is a subscription.Connection implementation that speaks the
// envelope above over conn. One Connection instance should be scoped to
// a single stream or the all-streams feed, matching invariant I4 of the
// core state machine (at most one outstanding Read, at most one active
// SubscribeTo).
type Connection[P any, E subscription.Event[P]] struct {
	Conn   *grpc.ClientConn
	Codec  Codec[P, E]
	Tracer trace.Tracer
	Logger logger.Logger

	mu     sync.Mutex
	active grpc.ClientStream
}

func (c *Connection[P, E]) tracer() trace.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}

	return trace.NewNoopTracerProvider().Tracer("grpcconn")
}

// Read starts a single forward page read on its own short-lived stream.
func (c *Connection[P, E]) Read(ctx context.Context, req subscription.ReadRequest[P], mailbox chan<- subscription.Inbound) {
	ctx, span := c.tracer().Start(ctx, "grpcconn.Read", trace.WithAttributes(
		attribute.String("catchup.correlation_id", req.CorrelationID),
	))

	go func() {
		defer span.End()

		stream, err := c.Conn.NewStream(ctx, &streamDesc, fullMethod)
		if err != nil {
			c.logFailure("grpcconn.Read: failed to open stream", err, req.CorrelationID)
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.Read: failed to open stream: %w", err)}

			return
		}

		envelope, err := c.encodeReadRequest(req)
		if err != nil {
			c.logFailure("grpcconn.Read: failed to encode request", err, req.CorrelationID)
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: err}

			return
		}

		if err := stream.SendMsg(envelope); err != nil {
			c.logFailure("grpcconn.Read: failed to send request", err, req.CorrelationID)
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.Read: failed to send request: %w", err)}

			return
		}

		if err := stream.CloseSend(); err != nil {
			c.logFailure("grpcconn.Read: failed to close send side", err, req.CorrelationID)
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.Read: failed to close send side: %w", err)}

			return
		}

		resp := &structpb.Struct{}
		if err := stream.RecvMsg(resp); err != nil {
			c.logFailure("grpcconn.Read: failed to receive response", err, req.CorrelationID)
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.Read: failed to receive response: %w", err)}

			return
		}

		msg, err := c.decodeInbound(resp)
		if err != nil {
			c.logFailure("grpcconn.Read: failed to decode response", err, req.CorrelationID)
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: err}

			return
		}

		mailbox <- msg
	}()
}

// logFailure reports a transport-level failure through c.Logger, if set.
func (c *Connection[P, E]) logFailure(msg string, err error, correlationID string) {
	logger.Error(c.Logger, msg,
		logger.With("error", err.Error()),
		logger.With("correlation_id", correlationID),
	)
}

// SubscribeTo opens the long-lived stream used for the live push half of
// a subscription: one request is sent, then messages are received until
// the server closes the stream or Unsubscribe tears it down.
func (c *Connection[P, E]) SubscribeTo(ctx context.Context, req subscription.SubscribeRequest, mailbox chan<- subscription.Inbound) {
	ctx, span := c.tracer().Start(ctx, "grpcconn.SubscribeTo", trace.WithAttributes(
		attribute.String("catchup.correlation_id", req.CorrelationID),
	))

	go func() {
		stream, err := c.Conn.NewStream(ctx, &streamDesc, fullMethod)
		if err != nil {
			c.logFailure("grpcconn.SubscribeTo: failed to open stream", err, req.CorrelationID)
			span.End()
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.SubscribeTo: failed to open stream: %w", err)}

			return
		}

		logger.Debug(c.Logger, "grpcconn.SubscribeTo: stream opened", logger.With("correlation_id", req.CorrelationID))

		c.mu.Lock()
		c.active = stream
		c.mu.Unlock()

		envelope, err := c.encodeSubscribeRequest(req)
		if err != nil {
			c.logFailure("grpcconn.SubscribeTo: failed to encode request", err, req.CorrelationID)
			span.End()
			mailbox <- subscription.FailureMsg{Err: err}

			return
		}

		if err := stream.SendMsg(envelope); err != nil {
			c.logFailure("grpcconn.SubscribeTo: failed to send request", err, req.CorrelationID)
			span.End()
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.SubscribeTo: failed to send request: %w", err)}

			return
		}

		group, _ := errgroup.WithContext(ctx)

		group.Go(func() error {
			defer span.End()

			for {
				resp := &structpb.Struct{}
				if err := stream.RecvMsg(resp); err != nil {
					if errors.Is(err, io.EOF) {
						logger.Debug(c.Logger, "grpcconn.SubscribeTo: stream closed", logger.With("correlation_id", req.CorrelationID))
						mailbox <- subscription.Unsubscribed{}
						return nil
					}

					c.logFailure("grpcconn: stream receive failed", err, req.CorrelationID)
					span.RecordError(err)
					mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn: stream receive failed: %w", err)}

					return err
				}

				msg, err := c.decodeInbound(resp)
				if err != nil {
					mailbox <- subscription.FailureMsg{Err: err}
					return err
				}

				mailbox <- msg

				if _, ok := msg.(subscription.Unsubscribed); ok {
					return nil
				}
			}
		})

		_ = group.Wait()
	}()
}

// Unsubscribe tears down the active live subscription stream, if any.
func (c *Connection[P, E]) Unsubscribe(ctx context.Context, mailbox chan<- subscription.Inbound) {
	_, span := c.tracer().Start(ctx, "grpcconn.Unsubscribe")

	c.mu.Lock()
	stream := c.active
	c.active = nil
	c.mu.Unlock()

	if stream == nil {
		span.End()
		mailbox <- subscription.Unsubscribed{}
		return
	}

	go func() {
		defer span.End()

		envelope, err := structpb.NewStruct(map[string]interface{}{"kind": "unsubscribe_request"})
		if err != nil {
			c.logFailure("grpcconn.Unsubscribe: failed to encode request", err, "")
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.Unsubscribe: failed to encode request: %w", err)}
			return
		}

		if err := stream.SendMsg(envelope); err != nil {
			c.logFailure("grpcconn.Unsubscribe: failed to send request", err, "")
			span.RecordError(err)
			mailbox <- subscription.FailureMsg{Err: fmt.Errorf("grpcconn.Unsubscribe: failed to send request: %w", err)}
			return
		}

		_ = stream.CloseSend()
		// The recv loop started by SubscribeTo observes the server's matching
		// close and pushes the actual Unsubscribed / Failure message.
	}()
}

func (c *Connection[P, E]) encodeReadRequest(req subscription.ReadRequest[P]) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"kind":             "read_request",
		"count":            float64(req.Count),
		"resolve_link_tos": req.ResolveLinkTos,
		"correlation_id":   req.CorrelationID,
	}

	if req.Credentials != nil {
		fields["username"] = req.Credentials.Username
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("grpcconn: failed to encode read request: %w", err)
	}

	s.Fields["from"] = c.Codec.EncodePosition(req.From)

	return s, nil
}

func (c *Connection[P, E]) encodeSubscribeRequest(req subscription.SubscribeRequest) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"kind":             "subscribe_request",
		"resolve_link_tos": req.ResolveLinkTos,
		"correlation_id":   req.CorrelationID,
	}

	if req.Credentials != nil {
		fields["username"] = req.Credentials.Username
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("grpcconn: failed to encode subscribe request: %w", err)
	}

	return s, nil
}

func (c *Connection[P, E]) decodeInbound(s *structpb.Struct) (subscription.Inbound, error) {
	switch s.Fields["kind"].GetStringValue() {
	case "read_completed":
		return c.decodeReadCompleted(s)
	case "subscribe_completed":
		pos, err := c.Codec.DecodePosition(s.Fields["at"])
		if err != nil {
			return nil, fmt.Errorf("grpcconn: failed to decode subscribe_completed: %w", err)
		}

		return subscription.SubscribeCompleted[P]{At: pos}, nil
	case "event_appeared":
		event, err := c.Codec.DecodeEvent(s.Fields["event"].GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("grpcconn: failed to decode event_appeared: %w", err)
		}

		return subscription.EventAppeared[E]{Event: event}, nil
	case "unsubscribed":
		return subscription.Unsubscribed{}, nil
	case "failure":
		return nil, mapFailure(s.Fields["error"].GetStringValue())
	default:
		return nil, fmt.Errorf("grpcconn: unrecognized envelope kind %q", s.Fields["kind"].GetStringValue())
	}
}

func (c *Connection[P, E]) decodeReadCompleted(s *structpb.Struct) (subscription.Inbound, error) {
	next, err := c.Codec.DecodePosition(s.Fields["next"])
	if err != nil {
		return nil, fmt.Errorf("grpcconn: failed to decode read_completed.next: %w", err)
	}

	rawEvents := s.Fields["events"].GetListValue().GetValues()
	events := make([]E, 0, len(rawEvents))

	for _, raw := range rawEvents {
		event, err := c.Codec.DecodeEvent(raw.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("grpcconn: failed to decode read_completed event: %w", err)
		}

		events = append(events, event)
	}

	return subscription.ReadCompleted[P, E]{
		Events:      events,
		Next:        next,
		EndOfStream: s.Fields["end_of_stream"].GetBoolValue(),
	}, nil
}

// mapFailure translates a server-reported error code into the sentinel
// errors errors.go's absorb/terminal logic understands.
func mapFailure(code string) error {
	switch code {
	case "stream_not_found":
		return subscription.ErrStreamNotFound
	case "stream_deleted":
		return subscription.ErrStreamDeleted
	case "not_authenticated":
		return subscription.ErrNotAuthenticated
	case "access_denied":
		return subscription.ErrAccessDenied
	default:
		return fmt.Errorf("%w: %s", subscription.ErrServerError, code)
	}
}
