package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/idhash"
)

// EncodeJSON renders v the way every registry file is written: two-space
// indentation, no HTML escaping, trailing newline.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeList parses a list file. Malformed content is a StructuralError.
func DecodeList(path string, data []byte) (*domain.TokenList, error) {
	var list domain.TokenList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, domain.NewStructuralError(path, "invalid token list json", err)
	}
	if list.Keywords == nil {
		list.Keywords = []string{}
	}
	if list.Tokens == nil {
		list.Tokens = []domain.TokenListEntry{}
	}
	return &list, nil
}

// LoadedFromBytes decodes data and pairs it with its content hash.
func LoadedFromBytes(path string, data []byte) (*LoadedList, error) {
	list, err := DecodeList(path, data)
	if err != nil {
		return nil, err
	}
	return &LoadedList{List: list, Hash: idhash.ContentHash(data)}, nil
}
