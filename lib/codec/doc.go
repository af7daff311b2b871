// Package codec defines the scalar values that flow between the benchmark
// driver and a storage backend.
//
// Every field value is one of three wire representations (UTF-8 string,
// opaque bytes, 64-bit integer) or Null. Values carry an explicit type tag
// set by the caller. For untyped byte input the package still offers the
// legacy inference rule (Infer): exactly eight bytes are read as a big-endian
// integer, anything else stays a blob. The rule is ambiguous by nature and is
// only applied when the caller asks for it.
//
// Decoding goes the other way: backends report a declared column type and
// Decode rebuilds the matching Value. A stored null decodes to Null, never to
// an error.
package codec
