// Package checkpoint exposes the Store interface, used to persist the
// last position a subscription successfully processed, so that it can
// resume from there after an application restart instead of reprocessing
// events from the beginning.
package checkpoint
