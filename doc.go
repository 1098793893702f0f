// Package addrgo delivers versioned, region-sharded address typeahead indexes
// to long-lived client processes.
//
// Addrgo fetches compressed full-text address index bundles from a
// content-delivery origin, decompresses and builds them into queryable
// in-memory structures, and serves interactive typeahead searches against
// them while the published data changes underneath the running process.
//
// # Quick Start
//
//	ctx := context.Background()
//	client, _ := addrgo.Open(ctx,
//	    addrgo.WithManifestURL("https://cdn.example.com/address-index/manifest.json"),
//	)
//	defer client.Close()
//
//	results, _ := client.Search(ctx, shard.City, "123 main st", 10)
//
// # Caching Tiers
//
// Three tiers sit between a query and the origin:
//
//   - An in-process memory cache with a TTL, checked first on every load.
//   - A request-coalescing layer: concurrent loads of the same resource share
//     one fetch and observe the identical bundle.
//   - An optional persistent on-disk tier (see the agent package) that
//     survives process restarts.
//
// # Background Preloading
//
// A process-wide singleton controller warms the caches once per process
// lifetime, independent of user interaction:
//
//	client.StartPreload(ctx)
//
// A failed preload is invisible to callers; interactive search still works,
// just without the warm cache.
//
// # Typeahead
//
// The query package provides a debounced controller that guarantees the
// surfaced suggestions always belong to the most recently issued query,
// regardless of network completion order:
//
//	ta := client.NewTypeahead(ctx, shard.County)
//	ta.OnInput("123 ma")
package addrgo
