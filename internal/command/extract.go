package command

// ExtractObject returns the first balanced {...} substring of text. Braces
// inside JSON string literals are ignored, so `{"text":"a } b"}` is returned
// whole. A '{' that is never closed is skipped and scanning resumes after it,
// which lets a truncated fragment be followed by a complete object.
func ExtractObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
	}
	return "", false
}

// matchBrace finds the '}' closing the '{' at open.
func matchBrace(text string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
