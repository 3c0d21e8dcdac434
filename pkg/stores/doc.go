// Package stores provides the persistence layer for Skylift. It includes
// SQLite-based storage with WAL mode, connection pooling, and CRUD
// operations for tracked operations, the durable event log, and generated
// file artifacts.
package stores
