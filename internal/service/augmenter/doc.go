// Package augmenter equips an interpreter artifact with the pip installer.
//
// The artifact is unpacked into a scoped temporary directory, the bundled
// ensurepip module is run with the artifact's own interpreter and the tree is
// packed again under the requested name.
package augmenter
