// Package archive unpacks and repacks interpreter trees stored as zip files.
//
// Symlinks survive the round trip as links, file modes are kept and entries
// are written in sorted order so repacking the same tree yields the same
// layout.
package archive
