// Copyright 2026 The Edgebus Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode sorts map keys and uses the smallest integer encodings, so
// the same document always produces the same bytes.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any instead of the CBOR
// default map[any]any, which JSON encoders reject.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Pack encodes v to CBOR and compresses the result.
func Pack(v any) ([]byte, error) {
	encoded, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return compress(encoded), nil
}

// Unpack reverses Pack.
func Unpack(data []byte, v any) error {
	encoded, err := decompress(data)
	if err != nil {
		return err
	}
	if err := Unmarshal(encoded, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}
