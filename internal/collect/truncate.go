package collect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

const maxConsoleMessageBytes = 2048

func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}

// truncateMessage shortens s to at most maxBytes on a rune boundary and
// notes the original size and digest, so repeated messages stay
// recognizable.
func truncateMessage(s string, maxBytes int) string {
	out, truncated, origLen, hash := truncateBytes([]byte(s), maxBytes)
	if !truncated {
		return s
	}
	for len(out) > 0 && !utf8.Valid(out) {
		out = out[:len(out)-1]
	}
	return fmt.Sprintf("%s… [%d bytes, sha256:%s]", out, origLen, hash[:12])
}
