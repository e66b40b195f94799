package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type MetadataEntry struct {
	Key   string
	Value any
}

// Metadata is a caller supplied key/value bag attached verbatim to every
// audit log of a batch. Insertion order is preserved, including through JSON.
type Metadata []MetadataEntry

func (m Metadata) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// With returns a copy of m where key is set to value. An existing key keeps
// its position.
func (m Metadata) With(key string, value any) Metadata {
	out := make(Metadata, len(m), len(m)+1)
	copy(out, m)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, MetadataEntry{Key: key, Value: value})
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata %q: %w", e.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("metadata must be a json object")
	}

	out := Metadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("metadata key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode metadata %q: %w", key, err)
		}
		out = out.With(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
