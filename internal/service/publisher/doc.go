// Package publisher drives a full publishing run.
//
// A run fetches the index, parses every link into an identity, checks that
// each targeted platform is covered by the capability table, takes one ledger
// snapshot and then builds every new identity in catalog order. A failed
// artifact is reported and the run moves on; a malformed index or an unknown
// platform stops the run before anything is downloaded.
package publisher
