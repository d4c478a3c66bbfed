package model

// User is the authenticated identity supplied by the auth subsystem.
// The booking core never creates or mutates users; it only needs a
// stable identifier to attribute orders and enforce per-event caps.
type User struct {
	ID uint64 // users.id, taken from the access token's subject claim
}
