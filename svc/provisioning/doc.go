// Package provisioning creates, activates, deactivates and tears down stores.
//
// Provision runs as a saga: every step that leaves a durable effect has a
// compensating action, and a failure at any point undoes the completed steps
// in reverse order.
//
//	reserve-record   insert the record as provisioning   | roll back and delete the record
//	create-database  CREATE DATABASE                       | DROP DATABASE
//	register-route   open a pool and add it to the router  | remove the route
//	migrate          apply the tenant migrations           | (dropping the database undoes it)
//	create-owner     owner account in the store database   | delete the account
//	register-owner   owner directory entry in master       | delete the directory entries
//	activate         flip the record to active             |
//
// Compensation ignores caller cancellation, so a caller timing out mid-way
// still leaves nothing behind. If rollback itself fails, the returned *Error
// reports which compensations are outstanding and Service.Resume retries them.
//
// Delete tears a store down in a fixed order: route, database, owners, record.
// The record goes last so an incomplete teardown stays visible in the registry
// (as deleted) and can be retried.
package provisioning
