// Package reconnect schedules reconnection attempts for network profiles
// whose connections closed without being asked to.
//
// The first unexpected close of a profile connects again at once to its
// first server. Every later close waits for a delay that starts at one
// second and doubles up to a cap, rotating through the profile's servers.
// A successful registration forgets the attempt.
//
// A Scheduler is owned by a single goroutine. Timer expiries are handed to
// that goroutine through the Post function, so all state is touched from
// one place.
package reconnect
