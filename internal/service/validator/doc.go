// Package validator spot-checks an augmented interpreter artifact.
//
// Checks come from the capability engine and run in its declaration order
// inside a scoped temporary copy of the artifact. The first failing check
// fails the artifact.
package validator
