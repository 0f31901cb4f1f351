// Package cmdline tokenizes the command lines typed at the console, read from
// scripts and stored in hook settings.
package cmdline

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned by Split when a quote is left open.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Split tokenizes a command line. Whitespace separates arguments
// outside quotes; ' and " toggle quoting, so "" is an empty argument; a
// backslash escapes the next character (\n \r \t \b are control characters)
// and a trailing backslash is kept literally.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		hasArg  bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\':
			if i+1 == len(runes) {
				cur.WriteRune(r)
			} else {
				i++
				cur.WriteRune(escapeRune(runes[i]))
			}
			hasArg = true
		case r == '"' || r == '\'':
			inQuote = !inQuote
			hasArg = true
		case !inQuote && (r == ' ' || r == '\t'):
			if hasArg {
				args = append(args, cur.String())
				cur.Reset()
				hasArg = false
			}
		default:
			cur.WriteRune(r)
			hasArg = true
		}
	}
	if inQuote {
		return nil, ErrUnterminatedQuote
	}
	if hasArg {
		args = append(args, cur.String())
	}
	return args, nil
}

func escapeRune(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	default:
		return r
	}
}
