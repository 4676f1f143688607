// Package simplecache memoizes expensive data-loading functions such as
// GraphQL field resolvers or gRPC handlers.
//
// A [Cache] derives a key from the options a loader is called with, consults
// a pluggable [store.Store] and only invokes the loader on a miss:
//
//	c := simplecache.New[Query, Result]()
//	res, ok := c.Load(ctx, Query{Name: "Bill", Age: 6}, fetch,
//		simplecache.ExcludeKeys("age"),
//		simplecache.Expiry(time.Minute),
//	)
//	if !ok {
//		// fetch failed; nothing was cached
//	}
//
// Keys are the canonical JSON encoding of, in order of precedence, an
// alternate key ([AltKey]), the options with some fields removed at every
// depth ([ExcludeKeys]), or the options as given. Object fields are sorted,
// so two option values that encode to the same JSON object always share an
// entry regardless of field order.
//
// Without [WithStore] each Cache owns an in-process map. External stores such
// as [store.Redis] may report themselves disconnected, in which case every
// load simply recomputes.
package simplecache
