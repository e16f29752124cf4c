// Package api exposes the administrative and store-scoped HTTP endpoints.
//
// Admin routes manage the store lifecycle and run cross-store queries; they
// never bind a store code, so anything they touch goes through the master
// database or through an explicit fan-out. Store routes require the store
// code header (X-Tenant-ID by default) and run every query against that
// store's own database.
//
//	POST   /admin/tenants                     provision a store
//	GET    /admin/tenants                     list stores
//	GET    /admin/tenants/{code}              show a store
//	GET    /admin/tenants/id/{id}             show a store by id
//	POST   /admin/tenants/{code}/activate     activate
//	POST   /admin/tenants/{code}/deactivate   deactivate
//	DELETE /admin/tenants/{code}?force=true   tear down
//	GET    /admin/accounts?q=                 search accounts in every active store
//	GET    /store/accounts                    list the bound store's accounts
//	GET    /store/accounts/search?q=          search the bound store's accounts
//	GET    /health/live, /health/ready        health checks
//
// Errors are rendered as a JSON envelope. Uniqueness conflicts map to 409,
// unknown stores to 404 "store not found", inactive stores to 403, pool and
// connection failures to 503 "service unavailable for this store", a missing
// or malformed store code to 400 and request validation failures to 422.
package api
