// Package config loads authorization configuration from a YAML file and environment variables.
//
// Environment variables override file values:
//
//	RBACABAC_SERVICE_NAME="reports"
//	RBACABAC_REDIS_URL="redis://localhost:6379/0"
//	RBACABAC_CACHE_TTL="5m"
//	RBACABAC_LOCAL_CACHE_SIZE="10000"
//	RBACABAC_LOCAL_CACHE_TTL="30s"
//	RBACABAC_LOADER_TIMEOUT="2s"
//	RBACABAC_ROLE_SOURCE_URL="postgres://idp@localhost/idp?sslmode=disable"
//	RBACABAC_AUDIT_ENABLED="true"
//	RBACABAC_AUDIT_PATH="/var/log/rbacabac"
//	RBACABAC_LOG_LEVEL="info"  # debug, info, warn, error
//
// The same settings in YAML:
//
//	service_name: reports
//	redis:
//	  url: redis://localhost:6379/0
//	cache:
//	  ttl: 5m
//	  local_size: 10000
//	loader:
//	  timeout: 2s
//
// Usage:
//
//	cfg, err := config.LoadFile("/etc/rbacabac.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
package config
