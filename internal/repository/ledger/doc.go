// Package ledger records which artifact identities are already published.
//
// A ledger is read once per run through Snapshot and written through Publish
// after an artifact has been built and validated. Two sinks exist: a plain
// directory and the releases of a GitHub repository.
package ledger
