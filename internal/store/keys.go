package store

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Tuple encoding: every component is written byte by byte with 0x00 escaped as
// 0x00 0xFF, then terminated by 0x00 0x01. Byte-wise comparison of encoded keys
// matches component-wise comparison of the tuples, and the encoding of a prefix
// is a byte prefix of the encoding of every key that extends it.
const (
	escapeByte     = 0x00
	escapedNull    = 0xFF
	terminatorByte = 0x01
)

// EncodeKey encodes a tuple into its order-preserving byte form
func EncodeKey(k Key) []byte {
	size := 0
	for _, c := range k {
		size += len(c) + 2
	}
	out := make([]byte, 0, size)
	for _, c := range k {
		for i := 0; i < len(c); i++ {
			if c[i] == escapeByte {
				out = append(out, escapeByte, escapedNull)
				continue
			}
			out = append(out, c[i])
		}
		out = append(out, escapeByte, terminatorByte)
	}
	return out
}

// DecodeKey reverses EncodeKey
func DecodeKey(b []byte) (Key, error) {
	key := make(Key, 0, 4)
	var cur []byte
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			cur = append(cur, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, fmt.Errorf("truncated key at offset %d", i)
		}
		i++
		switch b[i] {
		case escapedNull:
			cur = append(cur, escapeByte)
		case terminatorByte:
			key = append(key, string(cur))
			cur = nil
		default:
			return nil, fmt.Errorf("invalid escape 0x%02x at offset %d", b[i], i)
		}
	}
	if cur != nil {
		return nil, fmt.Errorf("unterminated key component")
	}
	return key, nil
}

// PartitionKey composes a partition key from its parts
func PartitionKey(parts ...string) string {
	return string(EncodeKey(parts))
}

// EncodeCursor renders a clustering key as a store-native cursor. Hex keeps
// the cursor free of the '_' used by pagination tokens.
func EncodeCursor(k Key) string {
	return hex.EncodeToString(EncodeKey(k))
}

// DecodeCursor parses a cursor produced by EncodeCursor
func DecodeCursor(cursor string) (Key, error) {
	raw, err := hex.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return DecodeKey(raw)
}

// prefixEnd returns the smallest byte string greater than every string with
// the given prefix, or nil when no such bound exists.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// keyRange converts a Query into encoded bounds: lo inclusive, hi exclusive.
// A nil bound is unbounded.
func keyRange(q Query) (lo, hi []byte) {
	if len(q.Prefix) > 0 {
		lo = EncodeKey(q.Prefix)
		hi = prefixEnd(lo)
	}
	if len(q.After) > 0 {
		after := EncodeKey(q.After)
		if q.Reverse {
			if hi == nil || bytes.Compare(after, hi) < 0 {
				hi = after
			}
		} else {
			next := append(after, 0x00)
			if lo == nil || bytes.Compare(next, lo) > 0 {
				lo = next
			}
		}
	}
	return lo, hi
}

// inRange reports whether an encoded key falls inside [lo, hi)
func inRange(k, lo, hi []byte) bool {
	if lo != nil && bytes.Compare(k, lo) < 0 {
		return false
	}
	if hi != nil && bytes.Compare(k, hi) >= 0 {
		return false
	}
	return true
}
