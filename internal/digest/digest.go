// Package digest derives deterministic pseudonyms from sequence headers.
//
// A digest is the first Length hex characters of a hash of the header bytes.
// Nothing else is mixed in: the same header always yields the same digest,
// regardless of file, position or run. At 48 bits, collisions become likely
// somewhere past ten million distinct headers, so this is an identifier
// scheme rather than a security control.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Length is the number of hex characters in a digest.
const Length = 12

// DefaultAlgorithm names the hash used when none is configured.
const DefaultAlgorithm = "sha256"

// Func maps an original header to its digest.
type Func func(header string) string

var algorithms = map[string]Func{
	"sha256":  Header,
	"blake2b": Blake2b,
}

// Header returns the truncated SHA-256 digest of header.
func Header(header string) string {
	sum := sha256.Sum256([]byte(header))
	return hex.EncodeToString(sum[:Length/2])
}

// Blake2b returns the truncated BLAKE2b-256 digest of header.
func Blake2b(header string) string {
	sum := blake2b.Sum256([]byte(header))
	return hex.EncodeToString(sum[:Length/2])
}

// Lookup returns the digest function registered under name. An empty name
// selects DefaultAlgorithm.
func Lookup(name string) (Func, error) {
	if name == "" {
		name = DefaultAlgorithm
	}
	fn, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("unknown digest algorithm %q (supported: %v)", name, Names())
	}
	return fn, nil
}

// Names lists the supported algorithm names in sorted order.
func Names() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
