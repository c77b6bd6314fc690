package dictrd

import "math"

// decodeBase64 decodes a little-endian, MSB-last variant base-64 integer
// from the alphabet used by dictd index files: 'A'-'Z' -> 0-25, 'a'-'z'
// -> 26-51, '0'-'9' -> 52-61, '+' -> 62, '/' -> 63. Digits are weighted
// in reverse character order: the last character is the 64^0 digit.
//
// Unlike standard base64 there is no padding, and the empty string
// decodes to 0.
func decodeBase64(s string) (uint64, error) {
	var value uint64
	weight := uint64(1)
	for i := len(s) - 1; i >= 0; i-- {
		digit, err := base64Digit(s[i])
		if err != nil {
			return 0, err
		}
		term := digit * weight
		if weight != 0 && term/weight != digit {
			return 0, ErrBase64Overflow
		}
		if value > math.MaxUint64-term {
			return 0, ErrBase64Overflow
		}
		value += term
		if i > 0 {
			next := weight * 64
			if weight != 0 && next/64 != weight {
				return 0, ErrBase64Overflow
			}
			weight = next
		}
	}
	return value, nil
}

func base64Digit(c byte) (uint64, error) {
	switch {
	case c >= 'A' && c <= 'Z':
		return uint64(c - 'A'), nil
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 26, nil
	case c >= '0' && c <= '9':
		return uint64(c-'0') + 52, nil
	case c == '+':
		return 62, nil
	case c == '/':
		return 63, nil
	default:
		return 0, ErrInvalidBase64
	}
}
