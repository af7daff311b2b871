// Package db provides a standardized interface for the storage backends the
// benchmark drives. It defines the Backend interface that allows the store
// layer to talk to a relational database, a document store or the in-memory
// engine in the same way while each keeps its own read and write idioms.
//
// The package focuses on:
//   - A unified interface for point reads, filtered queries, key-range reads
//     and batched writes
//   - Feature discovery through capability flags
//   - Backend-neutral query and mutation descriptions
//   - Read snapshot selection through TimestampBound
//
// Key Components:
//
//   - Backend Interface: The core interface that all backend bindings must
//     satisfy. It provides ReadRow, Query, ReadRange and Apply, plus Info and
//     Close.
//
//   - ConditionalWriter: An optional interface for backends that can check
//     and bump a record's version inside one transaction. The store layer
//     prefers it over a plain read followed by a write.
//
//   - Feature Flags: The Feature type defines capability flags that backends
//     advertise through SupportsFeature. Flags are fixed when the backend is
//     constructed.
//
//   - Query / Predicate: A small select model (AND-ed comparisons, one order
//     column, a limit) that each binding translates into its own language:
//     parameterized SQL, field-filtered document queries or an in-memory scan.
//
//   - Mutation: An upsert or delete of one record, keyed by the table's
//     primary-key column. Mutations are buffered by the store and handed to
//     Apply in batches.
//
// Errors:
//
// Backends report ErrNotFound, ErrMultipleRows, ErrVersionMismatch (usually
// as *VersionMismatchError) and ErrUnsupported as wrapped sentinels. Every
// other error is treated as a transient backend failure.
//
// Related Packages:
//
// The engines/maple package provides an in-memory multi-version
// implementation used for local runs and tests. The engines/spanner and
// engines/firestore packages bind Cloud Spanner and Firestore.
//
// The testing package (github.com/ValentinKolb/dBench/lib/db/testing)
// provides a conformance suite (RunBackendTests) and benchmarks
// (RunBackendBenchmarks) for any Backend.
package db
