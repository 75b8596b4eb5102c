// Package value provides the JSON value model carried inside method call
// arguments.
//
// This package contains the sealed Value variant, strict decoding, canonical
// JSON and content fingerprints. All other internal packages may import
// value; value imports nothing internal. This keeps argument payloads the
// foundational layer of a batch with no circular dependencies.
//
// Key design constraints:
//   - Value is sealed: only Null, String, Int, Float, Bool, Array and Object
//     implement it
//   - JSON null is a first-class Null value (JMAP uses null to mean "default")
//   - Integers stay int64 and never round-trip through float64
//   - Object marshals with keys in RFC 8785 order so encoded batches are
//     byte-stable
package value
