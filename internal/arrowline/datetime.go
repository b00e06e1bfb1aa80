package arrowline

import (
	"strings"

	"github.com/rotisserie/eris"
)

// dateTimeLayout converts a date-time pattern to a Go time layout. Patterns
// use the letters of java.text.SimpleDateFormat ("yyyy-MM-dd HH:mm:ss").
// A pattern that is already a Go layout (it mentions 2006) is returned as is.
func dateTimeLayout(pattern string) (string, error) {
	if pattern == "" {
		return "", ErrMissingDateTimeFormat
	}
	if strings.Contains(pattern, "2006") {
		return pattern, nil
	}

	var b strings.Builder
	runes := []rune(pattern)

	for i := 0; i < len(runes); {
		r := runes[i]

		if r == '\'' {
			end, lit, err := quotedLiteral(runes, i)
			if err == nil {
				err = checkLiteral(lit)
			}
			if err != nil {
				return "", eris.Wrapf(err, "arrowline: pattern %q", pattern)
			}
			b.WriteString(lit)
			i = end
			continue
		}

		if !isPatternLetter(r) {
			if err := checkLiteral(string(r)); err != nil {
				return "", eris.Wrapf(err, "arrowline: pattern %q", pattern)
			}
			b.WriteRune(r)
			i++
			continue
		}

		n := 1
		for i+n < len(runes) && runes[i+n] == r {
			n++
		}

		tok, err := layoutToken(r, n, b.String())
		if err != nil {
			return "", eris.Wrapf(err, "arrowline: pattern %q", pattern)
		}
		b.WriteString(tok)
		i += n
	}

	return b.String(), nil
}

// layoutWords are the alphabetic chunks time.Parse treats as layout elements.
var layoutWords = []string{"Jan", "Mon", "MST", "PM", "pm"}

// checkLiteral rejects literal text that a Go layout would read as a layout
// element. Go layouts have no escape syntax.
func checkLiteral(lit string) error {
	if strings.ContainsAny(lit, "0123456789_") {
		return eris.Wrapf(ErrInvalidDateTimePattern, "literal %q contains digits or '_'", lit)
	}
	for _, w := range layoutWords {
		if strings.Contains(lit, w) {
			return eris.Wrapf(ErrInvalidDateTimePattern, "literal %q contains layout element %q", lit, w)
		}
	}
	return nil
}

func isPatternLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// quotedLiteral reads the quoted section starting at runes[start] and returns
// the index just past it. Two single quotes stand for one literal quote.
func quotedLiteral(runes []rune, start int) (int, string, error) {
	if start+1 < len(runes) && runes[start+1] == '\'' {
		return start + 2, "'", nil
	}

	var lit strings.Builder
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != '\'' {
			lit.WriteRune(runes[i])
			continue
		}
		if i+1 < len(runes) && runes[i+1] == '\'' {
			lit.WriteRune('\'')
			i++
			continue
		}
		return i + 1, lit.String(), nil
	}
	return 0, "", eris.Wrap(ErrInvalidDateTimePattern, "unterminated quote")
}

func layoutToken(letter rune, n int, written string) (string, error) {
	switch letter {
	case 'y':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M':
		switch n {
		case 1:
			return "1", nil
		case 2:
			return "01", nil
		case 3:
			return "Jan", nil
		default:
			return "January", nil
		}
	case 'd':
		if n == 1 {
			return "2", nil
		}
		return "02", nil
	case 'H':
		return "15", nil
	case 'h':
		if n == 1 {
			return "3", nil
		}
		return "03", nil
	case 'm':
		if n == 1 {
			return "4", nil
		}
		return "04", nil
	case 's':
		if n == 1 {
			return "5", nil
		}
		return "05", nil
	case 'S':
		// Go only knows fractional seconds directly after a separator.
		if !strings.HasSuffix(written, ".") && !strings.HasSuffix(written, ",") {
			return "", eris.Wrap(ErrInvalidDateTimePattern, "fractional seconds must follow '.' or ','")
		}
		return strings.Repeat("0", n), nil
	case 'a':
		return "PM", nil
	case 'E':
		if n <= 3 {
			return "Mon", nil
		}
		return "Monday", nil
	case 'Z':
		return "-0700", nil
	case 'X':
		switch n {
		case 1:
			return "Z07", nil
		case 2:
			return "Z0700", nil
		default:
			return "Z07:00", nil
		}
	case 'z':
		return "MST", nil
	}
	return "", eris.Wrapf(ErrInvalidDateTimePattern, "unsupported pattern letter %q", letter)
}
