// Package builder runs the per-artifact build pipeline.
//
// An artifact moves through download, hash verification, augmentation,
// validation and publication. Each phase runs in a scoped work directory that
// is removed on every exit path, and nothing reaches the sink before every
// earlier phase has passed.
package builder
