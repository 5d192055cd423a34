// Package capability decides which interpreter checks apply to an artifact.
//
// A rule table pairs every capability with an optional version constraint and
// an optional platform marker such as `sys_platform != "win32"`. Platform tags
// are mapped to a small family vocabulary before markers are evaluated, and a
// tag missing from that mapping is an error rather than an empty check list.
//
// The default table is embedded; a YAML or JSONC file with the same shape can
// replace it without a rebuild.
package capability
