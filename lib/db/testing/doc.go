// Package testing provides standardised tests and benchmarks for backends
// that satisfy the db.Backend interface.
//
// The package contains:
//   - testing: A conformance suite for the Backend contract (point reads,
//     upsert merging, deletes, key-range reads, filtered queries, versioned
//     updates and concurrent writers)
//   - benchmark: Throughput tests for the common backend operations
//
// Subtests skip themselves when the backend does not advertise the feature
// they exercise.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.Backend {
//		return NewMyBackend()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunBackendTests(t, "MyBackend", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunBackendBenchmarks(b, "MyBackend", factory)
package testing
