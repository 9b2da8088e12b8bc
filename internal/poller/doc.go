// Package poller provides the HTTP and pacing primitives behind the
// appointment watcher.
//
// The main components are:
//
//   - [Client]: cookie-aware HTTP client with timeout and size limits
//   - [Pacer]: token-bucket spacing of outbound requests
//   - [AdaptiveScheduler]: chooses the delay between poll cycles
//   - [RetryBudget]: bounds the number of poll cycles
//
// Users of the visaslot library should not need to interact with this
// package directly. Configuration is done through the main visaslot package.
package poller
