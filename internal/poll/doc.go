// Package poll implements the polling coordinator that drives every vendor
// integration in Hearth Core.
//
// A Coordinator owns exactly one VendorClient and runs a single periodic
// refresh cycle against it: fetch, merge the payload into an immutable
// Snapshot, and fan the new Snapshot out to registered listeners. Failures
// are absorbed locally: transient errors apply a linear backoff and mark the
// coordinator unavailable, a dropped session triggers exactly one
// reconnect-then-retry, and an authentication failure suspends polling until
// ResetAuth is called.
//
// Concurrency model:
//   - At most one poll is in flight per Coordinator. Refresh calls that
//     arrive while a poll is running join that poll and observe its result.
//   - Snapshots are copy-on-write; listeners never see a torn update, and a
//     listener that has observed Snapshot N never observes an older one.
//   - All methods are safe for concurrent use from multiple goroutines.
//
// Usage:
//
//	coord, err := poll.New(client, poll.Config{Interval: 30 * time.Second})
//	if err != nil { ... }
//	remove := coord.AddListener(func(s poll.Snapshot) { ... })
//	defer remove()
//	coord.Start(ctx)
//	defer coord.Stop()
package poll
