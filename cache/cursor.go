package cache

import (
	"fmt"
	"strconv"
)

// Cursor is the opaque watch index assigned by the registry. It is totally
// ordered by the remote side; the cache treats it as a token to pass back on
// the next blocking query. A nil *Cursor means "no prior read", which the
// registry answers immediately with current state.
type Cursor uint64

// ParseCursor parses the decimal string form used on the wire
// (e.g. the X-Consul-Index header).
func ParseCursor(s string) (Cursor, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q: %w", s, err)
	}

	return Cursor(v), nil
}

func (c Cursor) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// Ptr returns a pointer to a copy of the cursor.
func (c Cursor) Ptr() *Cursor {
	return &c
}
