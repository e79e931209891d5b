package ledgerbridge

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// The marketplace calling convention, shared by the write path and the
// read path:
//
//   - the marketplace name is always the first positional parameter of a
//     marketplace-scoped operation;
//   - offer identifiers travel as a fixed-width binary index, the literal
//     prefix "offer" followed by one index byte ("offer3" -> 6f 66 66 65 72
//     03), and that byte is transmitted raw exactly once, never
//     string-escaped (escaping it twice is how offers silently stop
//     matching on the contract side);
//   - integers travel as minimal little-endian bytes.

const offerPrefix = "offer"

// IsOfferID reports whether s is a display-form offer id ("offer" followed
// by a decimal index).
func IsOfferID(s string) bool {
	rest, ok := strings.CutPrefix(s, offerPrefix)
	if !ok || rest == "" {
		return false
	}
	n, err := strconv.Atoi(rest)
	return err == nil && n >= 0 && n <= 255
}

// EncodeOfferID converts a display-form offer id to its wire form.
func EncodeOfferID(id string) ([]byte, error) {
	rest, ok := strings.CutPrefix(id, offerPrefix)
	if !ok {
		return nil, &ProtocolError{Message: fmt.Sprintf("offer id %q lacks %q prefix", id, offerPrefix)}
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || n > 255 {
		return nil, &ProtocolError{Message: fmt.Sprintf("offer index %q is not a byte", rest)}
	}
	return append([]byte(offerPrefix), byte(n)), nil
}

// DecodeOfferID converts a wire-form offer id ("offer\x03") back to its
// display form ("offer3").
func DecodeOfferID(b []byte) (string, error) {
	if len(b) != len(offerPrefix)+1 || string(b[:len(offerPrefix)]) != offerPrefix {
		return "", fmt.Errorf("malformed wire offer id % x", b)
	}
	return offerPrefix + strconv.Itoa(int(b[len(offerPrefix)])), nil
}

// EncodeUintLE encodes v as minimal little-endian bytes. Zero encodes as a
// single zero byte.
func EncodeUintLE(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	n := 8
	for n > 1 && buf[n-1] == 0 {
		n--
	}
	return buf[:n:n]
}

// DecodeUintLE decodes little-endian bytes of any width up to 8.
func DecodeUintLE(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, fmt.Errorf("integer payload too wide: %d bytes", len(b))
	}
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// EncodeParams encodes positional arguments for the contract. When scoped
// is true the marketplace is prepended as the first parameter.
func EncodeParams(marketplace string, scoped bool, args []any) ([][]byte, error) {
	params := make([][]byte, 0, len(args)+1)
	if scoped {
		params = append(params, []byte(marketplace))
	}
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			if IsOfferID(v) {
				wire, err := EncodeOfferID(v)
				if err != nil {
					return nil, err
				}
				params = append(params, wire)
				continue
			}
			params = append(params, []byte(v))
		case []byte:
			params = append(params, v)
		case uint64:
			params = append(params, EncodeUintLE(v))
		case uint:
			params = append(params, EncodeUintLE(uint64(v)))
		case uint32:
			params = append(params, EncodeUintLE(uint64(v)))
		case int, int32, int64:
			n := toInt64(v)
			if n < 0 {
				return nil, &ProtocolError{Message: fmt.Sprintf("argument %d is negative (%d)", i, n)}
			}
			params = append(params, EncodeUintLE(uint64(n)))
		default:
			return nil, &ProtocolError{Message: fmt.Sprintf("argument %d has unsupported type %T", i, arg)}
		}
	}
	return params, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

// EncodeArgs encodes a queued operation's full parameter list. All
// queueable operations are marketplace-scoped.
func EncodeArgs(op *Operation) ([][]byte, error) {
	if !op.Name.Valid() {
		return nil, &ProtocolError{Message: fmt.Sprintf("unknown operation %q", op.Name)}
	}
	return EncodeParams(op.Marketplace, true, op.Args)
}

// OfferArg extracts the display-form offer id from an operation's
// arguments, if it carries one.
func OfferArg(op *Operation) (string, bool) {
	for _, arg := range op.Args {
		if s, ok := arg.(string); ok && IsOfferID(s) {
			return s, true
		}
	}
	return "", false
}
