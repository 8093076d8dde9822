package rbac

import (
	"encoding/json"
)

// Set is a boolean decision for every registered key
type Set [keyCount]bool

// Has reports whether k is granted
func (s *Set) Has(k Key) bool {
	if !k.Valid() {
		return false
	}
	return s[k]
}

// Put records a decision for k; unregistered keys are ignored
func (s *Set) Put(k Key, v bool) {
	if k.Valid() {
		s[k] = v
	}
}

// Count returns the number of granted keys
func (s *Set) Count() int {
	n := 0
	for _, v := range s {
		if v {
			n++
		}
	}
	return n
}

// Granted returns the granted keys in registry order
func (s *Set) Granted() []Key {
	var keys []Key
	for i, v := range s {
		if v {
			keys = append(keys, Key(i))
		}
	}
	return keys
}

// Map converts the set into its storage form: every key present
func (s *Set) Map() map[string]bool {
	m := make(map[string]bool, keyCount)
	for i, v := range s {
		m[keyNames[i]] = v
	}
	return m
}

// MarshalJSON renders the set as a key → bool object
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON reads a complete key → bool object
func (s *Set) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if invalid := InvalidKeys(m); len(invalid) > 0 {
		return &ValidationError{InvalidKeys: invalid}
	}
	*s = Set{}
	for name, v := range m {
		s[keysByName[name]] = v
	}
	return nil
}
