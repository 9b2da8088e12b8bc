// Package store keeps the latest scan outcome per facility and fans updates
// out to subscribers.
//
// The watch loop writes to the store after every facility scan; the status
// server reads snapshots from it and streams updates to SSE clients. Sends
// to subscribers never block: a subscriber with a full buffer misses the
// update.
package store
