// Package codec holds the canonical encodings and digests of a strand
// credential. Every byte that is hashed or signed is produced here.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with RFC 8949 core deterministic rules: sorted map keys,
// shortest integers, definite lengths only.
var encMode cbor.EncMode

// decMode is strict: duplicate keys, indefinite lengths and unknown fields
// are rejected, and trailing bytes after the top-level item are an error.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  131072,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a single CBOR item from data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
