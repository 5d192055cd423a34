// Package checksum maps index hash names to hash implementations and verifies
// downloaded files against the digest published alongside them.
//
// Algorithm names follow Python's hashlib spelling (sha256, sha3_256, blake2b)
// because that is what package indexes embed in link fragments.
package checksum
