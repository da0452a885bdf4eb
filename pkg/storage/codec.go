package storage

import (
	"encoding/binary"
	"fmt"

	json "github.com/goccy/go-json"
)

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func u64Bytes(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func bytesU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid u64 value length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
