package stream

import (
	"unicode/utf8"

	"github.com/BaSui01/textflow/types"
)

// validUTF8Prefix splits data into its longest valid UTF-8 prefix and a
// trailing remainder that may be the start of a rune split across
// fragments. Genuinely invalid bytes fail with UPSTREAM_ERROR.
func validUTF8Prefix(data []byte) (valid, rest []byte, err error) {
	end := len(data)
	for i := 0; i < end; {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(data[i:]) {
				// Incomplete tail; the next fragment completes it.
				return data[:i], data[i:], nil
			}
			return nil, nil, types.NewError(types.ErrUpstreamError,
				"malformed UTF-8 sequence in stream fragment")
		}
		i += size
	}
	return data, nil, nil
}
