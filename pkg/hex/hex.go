package hex

import "encoding/hex"

type InvalidByteError = hex.InvalidByteError

var Enc = hex.EncodeToString
var Dec = hex.DecodeString
var DecLen = hex.DecodedLen
var Decode = hex.Decode

// IsLowerHex reports whether s is exactly n lowercase hexadecimal
// characters.
func IsLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
