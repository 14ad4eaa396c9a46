// Package dedupe provides send deduplication using a time-based cache of
// client refs, so a retried send request cannot persist the same message twice.
package dedupe
