// Package coordinator serialises access to the MELCloud API.
//
// Many accessory requests arrive at once, typically one per characteristic
// when a host refreshes a tile, but MELCloud must not see concurrent device
// fetches. The Coordinator answers those requests from a short-lived cache of
// device snapshots and allows at most one fetch to be outstanding across all
// devices. Requests that need a fetch while another is running wait in a
// single FIFO queue and are replayed, in order, as soon as a fetch
// completes.
//
// # Concurrency
//
// A single goroutine owns the cache, the queue and the in-flight counter.
// Submit hands a request to that goroutine through a mailbox and never
// blocks. Network calls run on worker goroutines which post their results
// back to the same mailbox, so every state change happens on the loop.
// Callbacks run on the loop goroutine: they must not block, and they may
// call Submit again.
//
//	Submit ──▶ mailbox ──▶ loop ──┬── cache hit ─────────────▶ callback
//	                              ├── idle: fetch worker ──▶ mailbox
//	                              └── busy: FIFO queue
//
// Every accepted request completes exactly once. Stop completes anything
// still pending with no value.
package coordinator
