// Package catalog turns an artifact index page into an ordered list of links.
//
// Every anchor on the page must point at an artifact and carry exactly one
// integrity fragment (#sha256=...). The index is trusted to be well-formed:
// one bad anchor fails discovery instead of silently dropping an artifact.
package catalog
