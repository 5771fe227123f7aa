// Package vm defines the target of the luma compiler.
//
// This package contains:
//   - the register instruction set and its 32-bit encoding
//   - constant values and their deduplication keys
//   - function prototypes, the unit of compiled code
//   - compile-time arithmetic shared with an execution engine
//   - a textual listing and a CBOR image format for prototypes
package vm
