// Package rules decodes the YAML document that names viewer groups and the
// per-library track rules each group applies.
//
// Group and library order is preserved from the document because runs
// process groups in that order. Validation rejects overrides nested inside
// other overrides, so resolving a part never needs more than one override
// hop per track kind.
package rules
