package validator

import (
	"fmt"
	"strings"

	"appgen/internal/domain/entity"
)

var closing = map[byte]byte{')': '(', ']': '[', '}': '{'}

type opener struct {
	ch  byte
	off int
}

// checkBrackets verifies that (), [] and {} nest correctly outside strings and comments.
// Quotes that are not closed on the same line are treated as text, which tolerates
// apostrophes in JSX. Template literal substitutions are tracked.
func checkBrackets(file, src string) (entity.ValidationFinding, bool) {
	var stack []opener
	fail := func(off int, msg string) (entity.ValidationFinding, bool) {
		line, col := lineCol(src, off)
		return entity.ValidationFinding{File: file, Message: msg, Severity: entity.SeverityError, Line: line, Column: col}, false
	}

	inTemplate := false
	for i := 0; i < len(src); i++ {
		c := src[i]

		if inTemplate {
			switch {
			case c == '\\':
				i++
			case c == '`':
				inTemplate = false
			case c == '$' && i+1 < len(src) && src[i+1] == '{':
				stack = append(stack, opener{ch: '`', off: i})
				inTemplate = false
				i++
			}
			continue
		}

		switch c {
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				nl := strings.IndexByte(src[i:], '\n')
				if nl < 0 {
					i = len(src)
					break
				}
				i += nl
			} else if i+1 < len(src) && src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					return fail(i, "unterminated block comment")
				}
				i += end + 3
			}
		case '"', '\'':
			if end := closingQuote(src, i); end > 0 {
				i = end
			}
		case '`':
			inTemplate = true
		case '(', '[', '{':
			stack = append(stack, opener{ch: c, off: i})
		case ')', ']', '}':
			if len(stack) == 0 {
				return fail(i, fmt.Sprintf("unexpected %q", c))
			}
			top := stack[len(stack)-1]
			if c == '}' && top.ch == '`' {
				stack = stack[:len(stack)-1]
				inTemplate = true
				continue
			}
			if top.ch != closing[c] {
				return fail(i, fmt.Sprintf("mismatched %q, expected closer for %q", c, top.ch))
			}
			stack = stack[:len(stack)-1]
		}
	}

	if inTemplate {
		return fail(len(src), "unterminated template literal")
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fail(top.off, fmt.Sprintf("unclosed %q", top.ch))
	}
	return entity.ValidationFinding{}, true
}

// closingQuote returns the index of the quote closing src[start] on the same line, or -1.
func closingQuote(src string, start int) int {
	q := src[start]
	for j := start + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '\n':
			return -1
		case q:
			return j
		}
	}
	return -1
}
