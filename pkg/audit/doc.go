// Package audit implements the append-only structured event log that
// correlates everything a request touches by trace identifier.
//
// The Sink interface is a fallback-safe dependency: callers emit
// events fire-and-forget, and no sink implementation ever fails the
// surrounding request. The Service buffers writes through a single
// background writer so events for one request reach the store in
// emission order; on overflow it drops rather than applying
// backpressure.
package audit
