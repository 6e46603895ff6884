package models

// DriverFilter narrows an admin driver listing; nil fields are ignored.
type DriverFilter struct {
	Available *bool
	Verified  *bool
}
