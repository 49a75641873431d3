package tms

import (
	"bytes"
	"encoding/json"
	"maps"
)

// document remembers the object a model was decoded from, so that encoding it
// again emits every field the backend sent. Typed fields are written back only
// when their value changed since decoding
type document struct {
	raw  map[string]json.RawMessage
	seen map[string]json.RawMessage
}

func (d *document) decode(data []byte, typed any) error {
	d.raw, d.seen = nil, nil
	if err := json.Unmarshal(data, typed); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &d.raw); err != nil {
		return err
	}
	seen, err := fieldsOf(typed)
	d.seen = seen
	return err
}

func (d document) encode(typed any) ([]byte, error) {
	now, err := fieldsOf(typed)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(d.raw)+len(now))
	maps.Copy(out, d.raw)
	for k, v := range now {
		if prev, ok := d.seen[k]; ok && bytes.Equal(prev, v) {
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

func fieldsOf(typed any) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	return m, json.Unmarshal(b, &m)
}

type (
	orderFields Order
	stopFields  Stop
	lineFields  Line
)

func (o *Order) UnmarshalJSON(b []byte) error { return o.doc.decode(b, (*orderFields)(o)) }
func (o Order) MarshalJSON() ([]byte, error)  { return o.doc.encode((*orderFields)(&o)) }
func (s *Stop) UnmarshalJSON(b []byte) error  { return s.doc.decode(b, (*stopFields)(s)) }
func (s Stop) MarshalJSON() ([]byte, error)   { return s.doc.encode((*stopFields)(&s)) }
func (l *Line) UnmarshalJSON(b []byte) error  { return l.doc.decode(b, (*lineFields)(l)) }
func (l Line) MarshalJSON() ([]byte, error)   { return l.doc.encode((*lineFields)(&l)) }
