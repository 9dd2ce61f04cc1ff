// Package naming maps (role, kind) artifact references to stable (bucket, key) pairs.
//
// The table is the pipeline's only correctness mechanism: a producer and every
// consumer of an artifact resolve it through the same table, built once from the
// stage graph and injected into every stage runner.
package naming
