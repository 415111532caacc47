package frontend

// BraceDepth returns the number of "{" in src not yet closed by "}".
// Braces inside string and character literals and comments are ignored.
// A negative result means more closing than opening braces.
func BraceDepth(src string) int {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
		case '"', '\'':
			i = skipQuoted(src, i)
		case '/':
			if i+1 >= len(src) {
				continue
			}
			switch src[i+1] {
			case '/':
				for i < len(src) && src[i] != '\n' {
					i++
				}
			case '*':
				i += 2
				for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
					i++
				}
				i++
			}
		}
	}
	return depth
}

// skipQuoted returns the index of the quote closing the literal opened at
// src[start], or the last index if it is unterminated.
func skipQuoted(src string, start int) int {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(src) - 1
}
