package contentstore

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	multihashSHA256 = 0x12
	multihashLen    = 0x20
)

// Locator returns the locator of data.
func Locator(data []byte) string {
	sum := sha256.Sum256(data)
	buf := make([]byte, 0, 2+len(sum))
	buf = append(buf, multihashSHA256, multihashLen)
	buf = append(buf, sum[:]...)
	return base58.Encode(buf)
}

// ParseLocator returns the SHA-256 digest a locator names.
func ParseLocator(locator string) ([32]byte, error) {
	var digest [32]byte
	raw, err := base58.Decode(locator)
	if err != nil {
		return digest, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	if len(raw) != 34 || raw[0] != multihashSHA256 || raw[1] != multihashLen {
		return digest, fmt.Errorf("%w: not a sha2-256 multihash", ErrInvalidLocator)
	}
	copy(digest[:], raw[2:])
	return digest, nil
}

// Verify checks that data is the blob named by locator.
func Verify(locator string, data []byte) error {
	want, err := ParseLocator(locator)
	if err != nil {
		return err
	}
	if sha256.Sum256(data) != want {
		return ErrContentMismatch
	}
	return nil
}
