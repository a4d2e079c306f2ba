// Package ptrs provides helpers that return a pointer to a primitive
// value. Remediation results use pointer fields to distinguish "not
// reported" from zero values, and these helpers avoid the temporary
// variable dance at every construction site.
package ptrs

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
