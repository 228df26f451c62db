package models

// String methods for all custom string types.
// These are required for toon serialization, which uses fmt.Stringer.

// Status
func (s Status) String() string { return string(s) }

// Gender
func (g Gender) String() string { return string(g) }

// ValidityVerdict
func (v ValidityVerdict) String() string { return string(v) }
