// Package runner starts interpreter subprocesses on behalf of the augmenter and validator.
package runner
