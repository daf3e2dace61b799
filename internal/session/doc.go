// Package session implements the login use case on top of the
// Authentication aggregate: credential check, token issue, refresh, logout
// and bearer validation.
//
// A user holds at most one session. Login deletes any prior session under
// a per-user lock, and the storage UNIQUE(user_id) constraint rejects
// whatever a second process slips past the lock.
//
// Raw tokens never reach storage. The aggregate is given the SHA-256
// digest of each token and the raw values go back to the client only.
package session
