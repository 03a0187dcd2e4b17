package envelope

import (
	"crypto/rand"
	"io"
)

// ulidReader returns the randomness source backing each Factory's
// monotonic ULID sequence.
func ulidReader() io.Reader {
	return rand.Reader
}
