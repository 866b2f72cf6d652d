package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matoboco/IJ-HttpClient/internal/variable"
)

// DefaultDatePattern is the pattern used by $date when none is given.
const DefaultDatePattern = "yyyy-MM-dd"

// timeFuncs returns the time related built-ins.
func timeFuncs() []Function {
	full := function{name: "$timestampFull", usage: "$timestampFull(days, hour, minute)", min: 3, max: 3}
	full.call = func(ctx Context, args []variable.Literal) (string, error) {
		var values [3]int64
		for i := range values {
			value, err := full.intArg(args, i)
			if err != nil {
				return "", err
			}
			values[i] = value
		}

		day := ctx.now().AddDate(0, 0, int(values[0]))
		at := time.Date(day.Year(), day.Month(), day.Day(), int(values[1]), int(values[2]), 0, 0, day.Location())
		return strconv.FormatInt(at.UnixMilli(), 10), nil
	}

	date := function{name: "$timestampDate", usage: "$timestampDate(days)", min: 1, max: 1}
	date.call = func(ctx Context, args []variable.Literal) (string, error) {
		days, err := date.intArg(args, 0)
		if err != nil {
			return "", err
		}
		day := ctx.now().AddDate(0, 0, int(days))
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		return strconv.FormatInt(midnight.UnixMilli(), 10), nil
	}

	formatted := function{name: "$date", usage: `$date(days[, "pattern"])`, min: 1, max: 2}
	formatted.call = func(ctx Context, args []variable.Literal) (string, error) {
		days, err := formatted.intArg(args, 0)
		if err != nil {
			return "", err
		}

		pattern := DefaultDatePattern
		if len(args) > 1 {
			pattern, err = formatted.stringArg(args, 1)
			if err != nil {
				return "", err
			}
		}

		return FormatDate(ctx.now().AddDate(0, 0, int(days)), pattern), nil
	}

	return []Function{
		full,
		date,
		formatted,
		constant("$timestamp", "$timestamp", func(ctx Context) string {
			return strconv.FormatInt(ctx.now().UnixMilli(), 10)
		}),
		constant("$isoTimestamp", "$isoTimestamp", func(ctx Context) string {
			return ctx.now().UTC().Format("2006-01-02T15:04:05.000Z")
		}),
		constant("$datetime", "$datetime", func(ctx Context) string {
			return ctx.now().Format(time.DateTime)
		}),
	}
}

// FormatDate formats t according to a date pattern in the style used by .http files
// e.g. "yyyy-MM-dd HH:mm:ss.SSS".
//
// Letters in the pattern are pattern fields, anything inside single quotes is copied
// literally and '' is a literal single quote.
func FormatDate(t time.Time, pattern string) string {
	var s strings.Builder

	for i := 0; i < len(pattern); {
		char := pattern[i]

		if char == '\'' {
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				s.WriteByte('\'')
				i += 2
				continue
			}
			// Quoted literal text, '' inside it is a single quote
			i++
			for i < len(pattern) {
				if pattern[i] == '\'' {
					if i+1 < len(pattern) && pattern[i+1] == '\'' {
						s.WriteByte('\'')
						i += 2
						continue
					}
					i++
					break
				}
				s.WriteByte(pattern[i])
				i++
			}
			continue
		}

		if !isPatternLetter(char) {
			s.WriteByte(char)
			i++
			continue
		}

		n := 1
		for i+n < len(pattern) && pattern[i+n] == char {
			n++
		}
		s.WriteString(dateField(t, char, n))
		i += n
	}

	return s.String()
}

func isPatternLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// dateField formats a single run of n pattern letters.
func dateField(t time.Time, letter byte, n int) string {
	pad := func(v int) string {
		return fmt.Sprintf("%0*d", n, v)
	}

	switch letter {
	case 'y':
		if n == 2 {
			return fmt.Sprintf("%02d", t.Year()%100)
		}
		return pad(t.Year())
	case 'M':
		switch {
		case n >= 4:
			return t.Month().String()
		case n == 3:
			return t.Month().String()[:3]
		default:
			return pad(int(t.Month()))
		}
	case 'd':
		return pad(t.Day())
	case 'D':
		return pad(t.YearDay())
	case 'H':
		return pad(t.Hour())
	case 'h':
		hour := t.Hour() % 12
		if hour == 0 {
			hour = 12
		}
		return pad(hour)
	case 'm':
		return pad(t.Minute())
	case 's':
		return pad(t.Second())
	case 'S':
		millis := t.Nanosecond() / int(time.Millisecond)
		return pad(millis)
	case 'E':
		if n >= 4 {
			return t.Weekday().String()
		}
		return t.Weekday().String()[:3]
	case 'a':
		return t.Format("PM")
	case 'Z':
		return t.Format("-0700")
	case 'X':
		return t.Format("Z07:00")
	case 'z':
		return t.Format("MST")
	default:
		return strings.Repeat(string(letter), n)
	}
}
