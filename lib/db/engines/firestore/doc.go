// Package firestore implements the db.Backend interface on Cloud Firestore.
//
// Tables map to collections and records to documents. Document ids cannot
// contain '/', so primary keys are encoded by replacing it with '_' (see
// EncodeID). The primary key is also stored as a regular field, which keeps
// it available for projections.
//
// Predicates on the key column are translated into filters on the document
// name. Firestore requires the first sort of a query with an inequality
// filter to be on the filtered field, so queries with a non-key inequality
// are fetched unordered and without limit, then sorted by document id and
// truncated on the client. All other queries are ordered and limited on the
// server.
//
// Firestore has no multi-document batch in this binding: Apply writes each
// mutation with a merging Set (or a Delete) in order and stops at the first
// error. Stale reads use a read time of now minus the staleness bound.
// UpdateVersioned runs inside a Firestore transaction.
//
// A credentials file is required unless FIRESTORE_EMULATOR_HOST is set.
package firestore
