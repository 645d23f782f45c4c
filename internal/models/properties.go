package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PropertyMap is a string-keyed map of JSON values that preserves insertion
// order. Go maps iterate in random order, but property order must survive to
// the wire, so keys are tracked separately.
type PropertyMap struct {
	keys   []string
	values map[string]interface{}
}

// NewPropertyMap creates an empty property map.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{values: make(map[string]interface{})}
}

// Set adds or replaces a property. Replacing an existing key keeps its
// original position.
func (m *PropertyMap) Set(key string, value interface{}) {
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key and whether it is present.
func (m *PropertyMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of properties.
func (m *PropertyMap) Len() int {
	return len(m.keys)
}

// Keys returns the property names in insertion order.
func (m *PropertyMap) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

func (m *PropertyMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONValue(&buf, key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONValue(&buf, m.values[key]); err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Numbers are kept as
// json.Number so large integers round-trip without float64 rounding.
func (m *PropertyMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object for property map, got %v", tok)
	}

	m.keys = nil
	m.values = make(map[string]interface{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key in property map, got %v", keyTok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		m.Set(key, value)
	}

	// Consume the closing brace
	_, err = dec.Token()
	return err
}
