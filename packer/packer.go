// Package packer encodes values stored as BLOBs in the request journal.
package packer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeMessage serialises v with msgpack, using json struct tags as field
// names so the same structs can be logged as JSON.
func EncodeMessage(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
