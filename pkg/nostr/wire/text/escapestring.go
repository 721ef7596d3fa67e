package text

// EscapeString appends s to dst as a quoted JSON string using exactly the
// escapes required for the canonical event form: quotation mark, reverse
// solidus, \b \t \n \f \r, and \u00xx for the remaining control characters.
// Every other byte, including non-ASCII UTF-8 and '/', is copied verbatim.
func EscapeString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			// quotation mark
			dst = append(dst, '\\', '"')
		case c == '\\':
			// reverse solidus
			dst = append(dst, '\\', '\\')
		case c >= 0x20:
			// default, rest below are control chars
			dst = append(dst, c)
		case c == 0x08:
			dst = append(dst, '\\', 'b')
		case c == 0x09:
			dst = append(dst, '\\', 't')
		case c == 0x0a:
			dst = append(dst, '\\', 'n')
		case c == 0x0c:
			dst = append(dst, '\\', 'f')
		case c == 0x0d:
			dst = append(dst, '\\', 'r')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
	}
	dst = append(dst, '"')
	return dst
}

const hexDigits = "0123456789abcdef"
