package feature

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Set maps output identifiers to feature lists. Keys iterate in the order
// they were first added. The zero value is ready to use.
type Set struct {
	keys  []string
	lists map[string]List
}

// NewSet returns an empty Set.
func NewSet() *Set { return &Set{} }

// Append adds features to the list of output id, creating it if needed.
// Appending no features still registers the key.
func (s *Set) Append(id string, fs ...Feature) {
	if s.lists == nil {
		s.lists = map[string]List{}
	}
	l, ok := s.lists[id]
	if !ok {
		s.keys = append(s.keys, id)
	}
	s.lists[id] = append(l, fs...)
}

// Put replaces the list of output id, keeping its original key position.
func (s *Set) Put(id string, l List) {
	if s.lists == nil {
		s.lists = map[string]List{}
	}
	if _, ok := s.lists[id]; !ok {
		s.keys = append(s.keys, id)
	}
	s.lists[id] = l
}

// Get returns the list of output id.
func (s *Set) Get(id string) (List, bool) {
	if s == nil {
		return nil, false
	}
	l, ok := s.lists[id]
	return l, ok
}

// Has reports whether output id is present.
func (s *Set) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Keys returns output ids in insertion order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.keys...)
}

// Len is the number of outputs in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Concat appends every list of other onto s, in other's key order.
func (s *Set) Concat(other *Set) {
	for _, id := range other.Keys() {
		l, _ := other.Get(id)
		s.Append(id, l...)
	}
}

// MarshalJSON encodes the set as an object whose keys keep insertion order.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(s.lists[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping the document's key order.
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("feature set: expected object, got %v", tok)
	}
	*s = Set{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("feature set: expected key, got %v", tok)
		}
		var l List
		if err := dec.Decode(&l); err != nil {
			return fmt.Errorf("feature set %q: %w", id, err)
		}
		s.Put(id, l)
	}
	_, err = dec.Token()
	return err
}

// MarshalYAML encodes the set as a mapping whose keys keep insertion order.
func (s *Set) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, id := range s.Keys() {
		var v yaml.Node
		if err := v.Encode(s.lists[id]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: id}, &v)
	}
	return node, nil
}

var (
	_ msgpack.CustomEncoder = (*Set)(nil)
	_ msgpack.CustomDecoder = (*Set)(nil)
)

// EncodeMsgpack writes the set as a map in insertion order.
func (s *Set) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(s.Len()); err != nil {
		return err
	}
	for _, id := range s.Keys() {
		if err := enc.EncodeString(id); err != nil {
			return err
		}
		if err := enc.Encode(s.lists[id]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a map written by EncodeMsgpack.
func (s *Set) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	*s = Set{}
	for i := 0; i < n; i++ {
		id, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var l List
		if err := dec.Decode(&l); err != nil {
			return err
		}
		s.Put(id, l)
	}
	return nil
}
