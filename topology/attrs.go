package topology

import "strconv"

// Attributes holds the free-form metadata attached to nodes, ports and
// links. Values are strings when they come from a DOT description;
// programmatic callers may store numbers, booleans or string lists.
type Attributes map[string]interface{}

// Attr returns the attribute associated with key as a string. It
// returns the empty string if the attribute is unset or not a string.
func (a Attributes) Attr(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns the attribute associated with key as an int. The boolean
// return value reports whether the attribute was present and numeric.
// String values holding a decimal number are accepted as DOT stores
// all attributes as strings.
func (a Attributes) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// Bool returns the attribute associated with key as a bool, accepting
// the string forms strconv.ParseBool understands.
func (a Attributes) Bool(key string) (bool, bool) {
	switch v := a[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	}
	return false, false
}

// Strings returns the attribute associated with key as a string slice.
// A scalar string value yields a single-element slice.
func (a Attributes) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case string:
		return []string{v}
	}
	return nil
}

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// update merges src into a, overwriting existing keys (last write
// wins).
func (a Attributes) update(src Attributes) {
	for k, v := range src {
		a[k] = v
	}
}

func (a Attributes) clone() Attributes {
	c := make(Attributes, len(a))
	c.update(a)
	return c
}
