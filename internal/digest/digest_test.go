package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{12}$`)

func TestHeaderMatchesTruncatedSHA256(t *testing.T) {
	t.Parallel()

	for _, header := range []string{"seq1", "seq2", "r1", "HWI-ST123:4:1101:14346:1976#0/1", "", "ünïcode"} {
		sum := sha256.Sum256([]byte(header))
		want := hex.EncodeToString(sum[:])[:Length]
		assert.Equal(t, want, Header(header), "header %q", header)
	}
}

func TestHeaderKnownValues(t *testing.T) {
	t.Parallel()

	// sha256("") = e3b0c442 98fc1c14 ...
	assert.Equal(t, "e3b0c44298fc", Header(""))
	// sha256("abc") = ba7816bf 8f01cfea ...
	assert.Equal(t, "ba7816bf8f01", Header("abc"))
}

func TestDigestsAreStableAndShaped(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		fn, err := Lookup(name)
		require.NoError(t, err)

		first := fn("sample-42 lane=3")
		assert.Regexp(t, hexDigest, first, name)
		assert.Equal(t, first, fn("sample-42 lane=3"), name)
		assert.NotEqual(t, first, fn("sample-43 lane=3"), name)
	}
}

func TestBlake2bDiffersFromSHA256(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, Header("seq1"), Blake2b("seq1"))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	fn, err := Lookup("")
	require.NoError(t, err)
	assert.Equal(t, Header("x"), fn("x"))

	fn, err = Lookup("blake2b")
	require.NoError(t, err)
	assert.Equal(t, Blake2b("x"), fn("x"))

	_, err = Lookup("md5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "md5")
}

func TestNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"blake2b", "sha256"}, Names())
}

func BenchmarkHeader(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Header("HWI-ST123:4:1101:14346:1976#0/1")
	}
}
