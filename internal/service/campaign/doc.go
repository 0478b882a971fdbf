// Package campaign implements the campaign send lifecycle: the state
// machine over draft -> generating -> ready_to_send -> running ->
// paused/completed/cancelled/failed, the control operations (scheduleSend,
// pause, resume, cancel) that bulk-mutate a campaign's member emails, and
// the read-only schedule status rollup the UI polls.
//
// The service depends on the Repository interface defined in this package
// and on the pure scheduling engine in internal/schedule. Every control
// operation mutates its filtered email set atomically: the repository
// applies it as one transaction and reports ErrConcurrentModification when
// a racing operation got there first, which the service retries once.
//
// Repository implementations live in repository/postgres/.
package campaign
