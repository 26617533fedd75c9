// Package queue persists pipeline state in SQLite and exposes the scheduling
// primitives the workflow manager drives.
//
// The Store manages four concerns in one database: file entries with their
// stage checkpoints, the durable priority queue (claim, complete, fail,
// cancel), batch job aggregates, and the tag/category reference mirror. Claim
// and terminal transitions are short single-transaction critical sections;
// batch aggregates are folded into the same transaction as the member's
// terminal transition so counts never drift under concurrent workers.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
