// Package cmdline builds the single command-line string that CreateProcess
// expects from a program path and an argument vector.
//
// The quoting rule is narrow: a token that is empty becomes "",
// a token containing whitespace or a double quote is wrapped in double quotes
// with every embedded double quote doubled, and every other token is emitted
// verbatim. Backslashes are never treated specially.
package cmdline

import "strings"

// needsQuoting lists the bytes that force a token to be quoted.
const needsQuoting = " \t\n\v\f\""

// Quote returns the command-line form of a single token.
func Quote(token string) string {
	if token == "" {
		return `""`
	}
	if !strings.ContainsAny(token, needsQuoting) {
		return token
	}

	var b strings.Builder
	b.Grow(len(token) + 2 + strings.Count(token, `"`))
	b.WriteByte('"')
	for i := 0; i < len(token); i++ {
		c := token[i]
		b.WriteByte(c)
		if c == '"' {
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Build joins the quoted program path and arguments with single spaces.
// The program path is always the first token.
func Build(program string, args []string) string {
	var b strings.Builder
	b.WriteString(Quote(program))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(Quote(arg))
	}
	return b.String()
}

// Split is the inverse of Build. It tokenises a command line produced by
// Build: whitespace separates tokens outside quotes, a double quote toggles
// quoting, and a doubled quote inside a quoted run yields one literal quote.
func Split(line string) []string {
	var (
		tokens  []string
		current strings.Builder
		inToken bool
		quoted  bool
	)

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inToken = true
			if quoted && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			quoted = !quoted
		case !quoted && isSpace(c):
			flush()
		default:
			inToken = true
			current.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f':
		return true
	}
	return false
}
