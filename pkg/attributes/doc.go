// Package attributes serves per-user, per-service authorization attribute bundles.
//
// A UserAttributes bundle carries a user's roles, department, admin groups, customer
// scope and service-specific attributes. Bundles are cached in Redis (optionally fronted
// by an in-process LRU) and rebuilt from the authoritative role Source on a miss:
//
//	loader := attributes.NewLoader(attributes.NewSQLSource(idpDB))
//	store := attributes.NewStore(redisClient, loader, attributes.DefaultStoreConfig())
//	attrs, err := store.GetUserAttributes(ctx, userID, "reports")
//	if err != nil {
//		// errors.Is(err, attributes.ErrDependencyUnavailable): deny
//	}
//
// Role changes made out of band are pushed with Invalidate, which deletes the Redis
// entries and publishes a message that every process's Listener applies locally:
//
//	go store.NewListener().Run(ctx)
//
// Concurrent misses for the same key share one load. An invalidation that lands while a
// load is in flight keeps that load's result out of the cache, so the TTL is the upper
// bound on staleness.
package attributes
