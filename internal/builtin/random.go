package builtin

import (
	"math"
	mathrand "math/rand/v2"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/matoboco/IJ-HttpClient/internal/variable"
)

const (
	alphabetic   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numeric      = "0123456789"
	alphanumeric = alphabetic + numeric

	// maxLength is the longest string the generating built-ins will produce.
	maxLength = 1 << 20
)

// between returns a random integer in [from, to), or [from, to] if inclusive.
// from must not be greater than to.
func between(from, to int64, inclusive bool) int64 {
	// Unsigned arithmetic wraps, so the span of any valid range fits
	span := uint64(to) - uint64(from)
	if inclusive {
		if span == math.MaxUint64 {
			return int64(mathrand.Uint64())
		}
		span++
	}

	if span == 0 {
		return from
	}

	return int64(uint64(from) + mathrand.Uint64N(span))
}

// randomString returns a string of length n made of characters from chars.
func randomString(chars string, n int64) string {
	var s strings.Builder
	s.Grow(int(n))
	for range n {
		s.WriteByte(chars[mathrand.IntN(len(chars))])
	}
	return s.String()
}

// randomFuncs returns the $random.* family of built-ins that work on plain values.
func randomFuncs() []Function {
	var funcs []Function

	for _, spec := range []struct {
		name  string
		chars string
	}{
		{name: "$random.alphabetic", chars: alphabetic},
		{name: "$random.alphanumeric", chars: alphanumeric},
		{name: "$random.numeric", chars: numeric},
	} {
		fn := function{name: spec.name, usage: spec.name + "(length)", min: 1, max: 1}
		fn.call = func(_ Context, args []variable.Literal) (string, error) {
			n, err := fn.intArg(args, 0)
			if err != nil {
				return "", err
			}
			if n < 0 {
				return "", fn.argError("length must not be negative, got %d", n)
			}
			if n > maxLength {
				return "", fn.argError("length must not be greater than %d, got %d", maxLength, n)
			}
			return randomString(spec.chars, n), nil
		}
		funcs = append(funcs, fn)
	}

	hex := function{name: "$random.hexadecimal", usage: "$random.hexadecimal(max)", min: 1, max: 1}
	hex.call = func(_ Context, args []variable.Literal) (string, error) {
		limit, err := hex.intArg(args, 0)
		if err != nil {
			return "", err
		}
		if limit <= 0 {
			return "", hex.argError("max must be positive, got %d", limit)
		}
		return strings.ToUpper(strconv.FormatInt(mathrand.Int64N(limit), 16)), nil
	}

	integer := function{name: "$random.integer", usage: "$random.integer(from, to)", min: 2, max: 2}
	integer.call = func(_ Context, args []variable.Literal) (string, error) {
		from, to, err := integer.bounds(args)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(between(from, to, false), 10), nil
	}

	number := function{name: "$random.number", usage: "$random.number(from, to)", min: 2, max: 2}
	number.call = func(_ Context, args []variable.Literal) (string, error) {
		from, to, err := number.bounds(args)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(between(from, to, true), 10), nil
	}

	float := function{name: "$random.float", usage: "$random.float(from, to)", min: 2, max: 2}
	float.call = func(_ Context, args []variable.Literal) (string, error) {
		for i := range args {
			if args[i].Kind == variable.String {
				return "", float.argError("argument %d must be a number, got %q", i+1, args[i].Str)
			}
		}
		from, to := args[0].Float, args[1].Float
		if to < from {
			return "", float.argError("from (%s) must not be greater than to (%s)", args[0].Str, args[1].Str)
		}
		return strconv.FormatFloat(from+mathrand.Float64()*(to-from), 'f', -1, 64), nil
	}

	pick := function{name: "$random.pick", usage: "$random.pick(value, ...)", min: 1, max: -1}
	pick.call = func(_ Context, args []variable.Literal) (string, error) {
		return args[mathrand.IntN(len(args))].String(), nil
	}

	funcs = append(funcs,
		hex,
		integer,
		number,
		float,
		pick,
		constant("$random.uuid", "$random.uuid", func(Context) string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		}),
		constant("$uuid", "$uuid", func(Context) string {
			return uuid.NewString()
		}),
		constant("$randomInt", "$randomInt", func(Context) string {
			return strconv.Itoa(mathrand.IntN(1000))
		}),
		constant("$random.bool", "$random.bool", func(Context) string {
			return strconv.FormatBool(mathrand.IntN(2) == 1)
		}),
	)

	repeat := function{name: "$repeat", usage: "$repeat(text, count)", min: 2, max: 2}
	repeat.call = func(_ Context, args []variable.Literal) (string, error) {
		text, err := repeat.stringArg(args, 0)
		if err != nil {
			return "", err
		}
		count, err := repeat.intArg(args, 1)
		if err != nil {
			return "", err
		}
		if count < 0 {
			return "", repeat.argError("count must not be negative, got %d", count)
		}
		if text != "" && count > maxLength/int64(len(text)) {
			return "", repeat.argError("result must not be longer than %d bytes", maxLength)
		}
		return strings.Repeat(text, int(count)), nil
	}

	return append(funcs, repeat)
}

// bounds returns the two integer arguments of a range built-in, checking from <= to.
func (f function) bounds(args []variable.Literal) (from, to int64, err error) {
	from, err = f.intArg(args, 0)
	if err != nil {
		return 0, 0, err
	}
	to, err = f.intArg(args, 1)
	if err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, f.argError("from (%d) must not be greater than to (%d)", from, to)
	}
	return from, to, nil
}
