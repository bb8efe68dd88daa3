package metrolib

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Args holds the key=value arguments of one scenario line.
type Args map[string]string

// ParseArgs reads a comma separated list of key=value pairs. Empty
// entries are skipped; a repeated key or an entry without '=' is an error.
func ParseArgs(field string) (Args, error) {
	args := Args{}
	for _, entry := range strings.Split(field, ",") {
		if entry == "" {
			continue
		}
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidArgs, entry)
		}
		if _, dup := args[k]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidArgs, k)
		}
		args[k] = v
	}
	return args, nil
}

// String renders the arguments in canonical (sorted key) order.
func (a Args) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(a[k])
	}
	return sb.String()
}

// Get returns the value for key or def when it is absent.
func (a Args) Get(key, def string) string {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// Int returns key parsed as an integer, def when absent.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidArgs, key, v)
	}
	return n, nil
}

// Bool returns key parsed as a boolean, def when absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidArgs, key, v)
	}
	return b, nil
}

// Choice returns key when it is one of choices, def when absent.
func (a Args) Choice(key, def string, choices ...string) (string, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	for _, c := range choices {
		if v == c {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s=%q, expected one of %s", ErrInvalidArgs, key, v, strings.Join(choices, "|"))
}

// Require returns key or an error when it is missing or empty.
func (a Args) Require(key string) (string, error) {
	v := a[key]
	if v == "" {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidArgs, key)
	}
	return v, nil
}
