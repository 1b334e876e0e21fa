// Package cli implements authzctl, the operator tool for the attribute cache and policies.
//
// # Commands
//
// invalidate: drop cached attributes after an out-of-band role change
//
//	authzctl invalidate --user u-123 --service reports
//	authzctl invalidate --user u-123   # every service
//
// attributes: show the bundle a service sees, loading it from the role source on a miss
//
//	authzctl attributes --user u-123 --service reports [--refresh]
//
// check: evaluate a policy against object fields
//
//	authzctl check --user u-123 --policy ownership_or_department \
//		--object '{"owner_id":"u-9","department":"finance"}'
//
// filter: print the WHERE clause a policy compiles to
//
//	authzctl filter --user u-123 --policy customer_scope --dialect postgres
//
// policies, health and watch list the built-in policies, check the cache and role
// source, and stream invalidation messages.
//
// Every command reads configuration from RBACABAC_* environment variables, or from the
// YAML file given with --config.
package cli
