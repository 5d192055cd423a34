// Package pybi contains the artifact identity model.
//
// An Identity is the (implementation, version, platform) triple parsed from an
// artifact file name such as cpython_unofficial-3.10.0a1-macosx_10_9_x86_64.pybi.
// The platform also determines where the interpreter lives inside an unpacked
// artifact; InterpreterPath is the only place that layout is computed.
package pybi
