// Package offsync implements the cache side of an offline-first sync engine:
// a generation-scoped response cache and a network interception layer that
// serves from it when the network is unavailable.
//
// Components:
//   - Cache: one named bucket (the cache generation) of response snapshots,
//     pre-populated by Warm and written through on successful fetches.
//   - Interceptor: an http.RoundTripper in front of every page request.
//     API GETs are network-first, other GETs cache-first, everything else
//     passes through untouched.
//   - Proxy: an http.Handler that serves browser requests through any
//     RoundTripper (normally the Interceptor of the active worker).
//   - Provider / Codec / bucketstore.Store: where bytes live, how snapshots are
//     encoded, and which keys belong to which generation.
//
// Keys:
//
//	bucket:<generation>:<METHOD> <absolute-url>
//
// Generation swap:
//
//	next, _ := offsync.New(offsync.Options{Generation: "app-cache-v1.0.1", ...})
//	_ = next.Warm(ctx, precache)                      // failures are isolated
//	_, _ = next.EvictStaleGenerations(ctx, next.Generation())
//
// The outbox, the sync coordinator, the client notifier and the worker
// lifecycle live in the outbox, syncer, notify and worker packages.
package offsync
