// Package facade provides the thin, ready-to-use constructors that build
// a subscription.Config from ordinary function parameters, run the core
// state machine, and layer reconnect-and-resume on top of it. The core
// subscription package never does any of this itself: it only knows how
// to run a single subscription from a single connection until it
// terminates.
package facade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/get-eventually/go-catchup/subscription"
)

// SubscribeToStream opens a catch-up subscription against a single
// stream, matching the construction parameters: connection, streamID,
// fromNumberExclusive, resolveLinkTos, credentials, infinite and
// readBatchSize. conn must already be scoped to streamID; streamID here
// is used only to make the generated correlation id and log output
// legible.
func SubscribeToStream[E subscription.Event[subscription.EventNumber]](
	ctx context.Context,
	conn subscription.Connection[subscription.EventNumber, E],
	streamID string,
	fromNumberExclusive *subscription.EventNumber,
	resolveLinkTos bool,
	credentials *subscription.Credentials,
	infinite bool,
	readBatchSize uint32,
	consumer subscription.Consumer[E],
) subscription.Handle {
	cfg := subscription.Config[subscription.EventNumber]{
		From:           startFrom(fromNumberExclusive),
		ResolveLinkTos: resolveLinkTos,
		Credentials:    credentials,
		ReadBatchSize:  readBatchSize,
		Infinite:       infinite,
		CorrelationID:  fmt.Sprintf("%s/%s", streamID, uuid.NewString()),
	}.WithSettings(subscription.DefaultSettings)

	return subscription.Run(ctx, subscription.StreamKind[E](), conn, consumer, cfg)
}

// SubscribeToAll opens a catch-up subscription against the all-streams
// feed, matching the construction parameters: connection,
// fromPositionExclusive, resolveLinkTos, credentials, infinite and
// readBatchSize.
func SubscribeToAll[E subscription.Event[subscription.Position]](
	ctx context.Context,
	conn subscription.Connection[subscription.Position, E],
	fromPositionExclusive *subscription.Position,
	resolveLinkTos bool,
	credentials *subscription.Credentials,
	infinite bool,
	readBatchSize uint32,
	consumer subscription.Consumer[E],
) subscription.Handle {
	cfg := subscription.Config[subscription.Position]{
		From:           startFrom(fromPositionExclusive),
		ResolveLinkTos: resolveLinkTos,
		Credentials:    credentials,
		ReadBatchSize:  readBatchSize,
		Infinite:       infinite,
		CorrelationID:  uuid.NewString(),
	}.WithSettings(subscription.DefaultSettings)

	return subscription.Run(ctx, subscription.AllKind[E](), conn, consumer, cfg)
}

// startFrom translates the "Option<P>" construction parameter (a nil
// pointer meaning "from the beginning") into a subscription.Start[P].
func startFrom[P any](p *P) subscription.Start[P] {
	if p == nil {
		return subscription.FromBeginning[P]()
	}

	return subscription.FromExact(*p)
}
