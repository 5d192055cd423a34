// Package history records one row per artifact attempt of every run.
package history
