// Package tenant is the registry of stores: durable TenantRecords in the
// master database, the owner directory, and each store's own accounts table.
//
// Registry is implemented by PgRegistry (master database), MemoryRegistry
// (tests and single-process tooling) and CachedRegistry, a Redis read-through
// cache for code lookups in front of any other Registry.
//
// Status changes go through the lifecycle transition table:
//
//	provisioning -> active -> deactivated -> active
//	provisioning -> deleted (rollback)
//	active|deactivated -> deleted
//
// RouteLoader plugs the registry into a dbrouter.Router so routes for active
// stores are opened on first use and inactive stores are refused.
package tenant
