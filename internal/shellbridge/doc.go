// Package shellbridge owns at most one live remote shell and bridges its
// byte stream and lifecycle to a single event channel.
//
// All requests ([Bridge.Connect], [Bridge.Send], [Bridge.Resize],
// [Bridge.Disconnect]) are queued on a bounded channel and handled by one
// loop goroutine, which is also the only writer of the current connection
// handle and the only producer of [Event] values. Transport goroutines post
// their results back to the loop tagged with the attempt number they belong
// to; posts from an attempt that is no longer current are discarded.
//
// # Connection Lifecycle
//
//	idle ──Connect──▶ connecting ──dial ok──▶ ready ──shell opened──▶ streaming
//	                      │                     │                        │
//	                      └──── transport error ┴────────────────────────┴──▶ failed(reason)
//	                      └──── Disconnect / peer close ─────────────────────▶ closed
//
//	idle ──Disconnect──▶ closed
//
// A Connect while an attempt is live tears the old one down (shell, then
// transport) in the same loop iteration that starts the new one, so two
// channels are never current at once.
//
// # Events
//
//   - status "connected" once the transport is up, always before any data.
//   - data for stdout bytes, and for stderr bytes wrapped in red SGR codes.
//   - status "disconnected" or "error" exactly once per attempt; nothing of
//     that attempt follows it.
//   - echo for bytes sent while no shell is streaming. They never reach a
//     transport.
//
// # Backpressure
//
// Outbound writes and resizes go through a per-connection writer goroutine.
// Requests are always read, so Disconnect and Connect reach a stalled
// stream. Input that would push the pending-write queue past
// [Options.MaxPendingWrite] bytes is dropped. While more than
// [Options.MaxPendingEvents] events await the consumer the loop stops
// draining transport posts, which stalls the readers and lets the transport
// push back on the peer.
//
// A local teardown (Disconnect, a superseding Connect, Stop) discards the
// attempt's data events that have not reached the consumer yet.
//
// # Log Prefixes
//
// The loop logs at the [bridge] prefix, the SSH transport at [ssh].
package shellbridge
