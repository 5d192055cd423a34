// Package github is a small client for the GitHub releases REST API.
//
// It covers what publishing needs: listing releases with pagination, fetching
// a release by tag, creating a release and uploading an asset through the
// release's templated upload URL.
package github
