package subscription

// Default values used by a subscription when its Config leaves the
// corresponding field unset, mirroring the "default if unspecified or
// negative value has been provided" pattern used throughout
// subscription.CatchUp. DefaultInfinite is the exception: nothing applies
// it automatically (see WithSettings).
const (
	DefaultReadBatchSize  uint32 = 500
	DefaultResolveLinkTos        = false
	DefaultInfinite              = true
)

// Settings holds process-wide defaults applied by Config.WithSettings,
// playing the role of Settings.default referenced by §6.
type Settings struct {
	ResolveLinkTos bool
	Credentials    *Credentials
	ReadBatchSize  uint32
}

// DefaultSettings is the zero-configuration Settings value: no
// credentials, link resolution off, DefaultReadBatchSize events per page.
var DefaultSettings = Settings{
	ResolveLinkTos: DefaultResolveLinkTos,
	ReadBatchSize:  DefaultReadBatchSize,
}

// Config is the immutable construction-time configuration of a
// subscription (§3).
type Config[P any] struct {
	// From is the from_exclusive starting position. The zero value reads
	// from the beginning of the log.
	From Start[P]

	// ResolveLinkTos is a passthrough flag forwarded to the transport on
	// every outbound Read and SubscribeTo.
	ResolveLinkTos bool

	// Credentials, when non-nil, are attached to every outbound Read and
	// SubscribeTo (P7).
	Credentials *Credentials

	// ReadBatchSize is the page size used for historical reads. Must be
	// greater than zero; readBatchSize() falls back to
	// DefaultReadBatchSize otherwise.
	ReadBatchSize uint32

	// Infinite selects whether the subscription transitions into a live
	// push subscription at end-of-stream (true) or completes (false).
	Infinite bool

	// CorrelationID, when non-empty, is attached to every outbound Read
	// and SubscribeTo request issued by this subscription, so a transport
	// or its server-side logs can group them together. Left empty, a
	// Connection implementation sees ReadRequest.CorrelationID /
	// SubscribeRequest.CorrelationID unset.
	CorrelationID string

	// BufferCapacity overrides DefaultBufferCapacity for the backpressure
	// gate (§5). Zero or negative falls back to DefaultBufferCapacity.
	BufferCapacity int
}

func (c Config[P]) bufferCapacity() int {
	if c.BufferCapacity <= 0 {
		return DefaultBufferCapacity
	}

	return c.BufferCapacity
}

func (c Config[P]) readBatchSize() uint32 {
	if c.ReadBatchSize == 0 {
		return DefaultReadBatchSize
	}

	return c.ReadBatchSize
}

// WithSettings backfills a Config's zero-valued fields (ReadBatchSize,
// ResolveLinkTos, Credentials) from the provided Settings, matching the
// "Defaults: ... = Settings.default" rule of §6. Infinite is left as
// given: the zero value of bool cannot distinguish "unset" from "false",
// so a Config that never sets Infinite runs in finite mode; set
// Infinite: true explicitly for a live subscription.
func (c Config[P]) WithSettings(s Settings) Config[P] {
	if c.ReadBatchSize == 0 {
		c.ReadBatchSize = s.ReadBatchSize
	}

	if c.Credentials == nil {
		c.Credentials = s.Credentials
	}

	if !c.ResolveLinkTos {
		c.ResolveLinkTos = s.ResolveLinkTos
	}

	return c
}
