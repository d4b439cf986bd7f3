package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileHash(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", FileHash([]byte("abc")))
	assert.NotEqual(t, FileHash([]byte("a")), FileHash([]byte("b")))
}

func TestOriginDigest(t *testing.T) {
	d := OriginDigest("h", 1, 100, 792)
	assert.Equal(t, d, OriginDigest("h", 1, 100, 792))
	assert.NotEqual(t, d, OriginDigest("h", 2, 100, 792))
	assert.NotEqual(t, d, OriginDigest("h", 1, 101, 792))
	assert.Len(t, d, 64)

	// same page geometry and index in another file is another origin
	assert.NotEqual(t, d, OriginDigest("h2", 1, 100, 792))
}

func TestPage_PositionSensitive(t *testing.T) {
	d := OriginDigest("h", 1, 100, 792)

	a := Page("tenants/t/documents/d", 1, d)
	assert.Equal(t, a, Page("tenants/t/documents/d", 1, d))
	assert.NotEqual(t, a, Page("tenants/t/documents/d", 2, d), "page number seeds the fingerprint")
	assert.NotEqual(t, a, Page("tenants/t/documents/other", 1, d), "storage key seeds the fingerprint")
}
