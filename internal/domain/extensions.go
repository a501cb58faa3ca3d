package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// IndexingInfo tells indexers how balances for a token should be read.
type IndexingInfo struct {
	UseOnChainBalance bool `json:"useOnChainBalance"`
}

// Extensions holds provenance and derived metadata for an entry.
// Known keys are typed; anything else is kept verbatim in Other so that
// lists written by other tools round-trip without loss.
type Extensions struct {
	Link        *string
	Description *string
	OGImage     *string

	OriginChainID *uint64
	OriginAddress *string

	AaveAToken              *bool
	UnderlyingTokenAddress  *string
	UnderlyingTokenName     *string
	UnderlyingTokenSymbol   *string
	UnderlyingTokenDecimals *int
	IndexingInfo            *IndexingInfo

	CoingeckoID  *string
	FeatureIndex *int

	Other map[string]json.RawMessage

	order []string // key order as decoded
}

// Extension keys with a typed field, in the order used for keys that were
// not present when the entry was decoded.
const (
	ExtLink                    = "link"
	ExtDescription             = "description"
	ExtOGImage                 = "ogImage"
	ExtOriginChainID           = "originChainId"
	ExtOriginAddress           = "originAddress"
	ExtAaveAToken              = "aaveAToken"
	ExtUnderlyingTokenAddress  = "underlyingTokenAddress"
	ExtUnderlyingTokenName     = "underlyingTokenName"
	ExtUnderlyingTokenSymbol   = "underlyingTokenSymbol"
	ExtUnderlyingTokenDecimals = "underlyingTokenDecimals"
	ExtIndexingInfo            = "indexingInfo"
	ExtCoingeckoID             = "coingeckoId"
	ExtFeatureIndex            = "featureIndex"
)

type extField struct {
	key string
	get func(*Extensions) any // nil-able pointer
	set func(*Extensions, json.RawMessage) error
}

func strField(key string, f func(*Extensions) **string) extField {
	return extField{
		key: key,
		get: func(x *Extensions) any {
			if p := *f(x); p != nil {
				return p
			}
			return nil
		},
		set: func(x *Extensions, raw json.RawMessage) error {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*f(x) = &v
			return nil
		},
	}
}

func intField(key string, f func(*Extensions) **int) extField {
	return extField{
		key: key,
		get: func(x *Extensions) any {
			if p := *f(x); p != nil {
				return p
			}
			return nil
		},
		set: func(x *Extensions, raw json.RawMessage) error {
			var v int
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*f(x) = &v
			return nil
		},
	}
}

var extFields = []extField{
	strField(ExtLink, func(x *Extensions) **string { return &x.Link }),
	strField(ExtDescription, func(x *Extensions) **string { return &x.Description }),
	strField(ExtOGImage, func(x *Extensions) **string { return &x.OGImage }),
	{
		key: ExtOriginChainID,
		get: func(x *Extensions) any {
			if x.OriginChainID != nil {
				return x.OriginChainID
			}
			return nil
		},
		set: func(x *Extensions, raw json.RawMessage) error {
			var v uint64
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			x.OriginChainID = &v
			return nil
		},
	},
	strField(ExtOriginAddress, func(x *Extensions) **string { return &x.OriginAddress }),
	{
		key: ExtAaveAToken,
		get: func(x *Extensions) any {
			if x.AaveAToken != nil {
				return x.AaveAToken
			}
			return nil
		},
		set: func(x *Extensions, raw json.RawMessage) error {
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			x.AaveAToken = &v
			return nil
		},
	},
	strField(ExtUnderlyingTokenAddress, func(x *Extensions) **string { return &x.UnderlyingTokenAddress }),
	strField(ExtUnderlyingTokenName, func(x *Extensions) **string { return &x.UnderlyingTokenName }),
	strField(ExtUnderlyingTokenSymbol, func(x *Extensions) **string { return &x.UnderlyingTokenSymbol }),
	intField(ExtUnderlyingTokenDecimals, func(x *Extensions) **int { return &x.UnderlyingTokenDecimals }),
	{
		key: ExtIndexingInfo,
		get: func(x *Extensions) any {
			if x.IndexingInfo != nil {
				return x.IndexingInfo
			}
			return nil
		},
		set: func(x *Extensions, raw json.RawMessage) error {
			var v IndexingInfo
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			x.IndexingInfo = &v
			return nil
		},
	},
	strField(ExtCoingeckoID, func(x *Extensions) **string { return &x.CoingeckoID }),
	intField(ExtFeatureIndex, func(x *Extensions) **int { return &x.FeatureIndex }),
}

var extFieldByKey = func() map[string]extField {
	m := make(map[string]extField, len(extFields))
	for _, f := range extFields {
		m[f.key] = f
	}
	return m
}()

// MarshalJSON emits keys in the order they were decoded. Keys set since
// then follow: typed keys in field order, then residual keys sorted by name.
func (x Extensions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	emitted := make(map[string]struct{}, len(extFields)+len(x.Other))

	write := func(key string, raw []byte) {
		if len(emitted) > 0 {
			buf.WriteByte(',')
		}
		emitted[key] = struct{}{}
		k, _ := marshalValue(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	writeTyped := func(f extField) (bool, error) {
		v := f.get(&x)
		if v == nil {
			return false, nil
		}
		raw, err := marshalValue(v)
		if err != nil {
			return false, fmt.Errorf("marshal extension %s: %w", f.key, err)
		}
		write(f.key, raw)
		return true, nil
	}

	for _, k := range x.order {
		if _, done := emitted[k]; done {
			continue
		}
		if f, ok := extFieldByKey[k]; ok {
			wrote, err := writeTyped(f)
			if err != nil {
				return nil, err
			}
			if wrote {
				continue
			}
		}
		if raw, ok := x.Other[k]; ok {
			write(k, raw)
		}
	}

	for _, f := range extFields {
		if _, done := emitted[f.key]; done {
			continue
		}
		if _, err := writeTyped(f); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(x.Other))
	for k := range x.Other {
		if _, done := emitted[k]; done {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, x.Other[k])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalValue encodes v without HTML escaping so string values are written
// back as they were read.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON routes known keys to typed fields and records the key order.
// Known keys holding null stay in Other so they are written back as null.
func (x *Extensions) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	order, err := objectKeys(data)
	if err != nil {
		return err
	}
	*x = Extensions{order: order}
	for _, f := range extFields {
		v, ok := raw[f.key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		if err := f.set(x, v); err != nil {
			return fmt.Errorf("extension %s: %w", f.key, err)
		}
		delete(raw, f.key)
	}
	if len(raw) > 0 {
		x.Other = raw
	}
	return nil
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// IsEmpty reports whether no key would be serialized.
func (x *Extensions) IsEmpty() bool {
	if x == nil {
		return true
	}
	for _, f := range extFields {
		if f.get(x) != nil {
			return false
		}
	}
	return len(x.Other) == 0
}

// SetOther stores an arbitrary value under a residual key. Keys with a typed
// field are rejected.
func (x *Extensions) SetOther(key string, value any) error {
	if _, known := extFieldByKey[key]; known {
		return fmt.Errorf("extension key %q has a typed field", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if x.Other == nil {
		x.Other = make(map[string]json.RawMessage)
	}
	x.Other[key] = raw
	return nil
}

// Clone returns a deep copy.
func (x *Extensions) Clone() *Extensions {
	if x == nil {
		return nil
	}
	out := &Extensions{
		Link:                    clonePtr(x.Link),
		Description:             clonePtr(x.Description),
		OGImage:                 clonePtr(x.OGImage),
		OriginChainID:           clonePtr(x.OriginChainID),
		OriginAddress:           clonePtr(x.OriginAddress),
		AaveAToken:              clonePtr(x.AaveAToken),
		UnderlyingTokenAddress:  clonePtr(x.UnderlyingTokenAddress),
		UnderlyingTokenName:     clonePtr(x.UnderlyingTokenName),
		UnderlyingTokenSymbol:   clonePtr(x.UnderlyingTokenSymbol),
		UnderlyingTokenDecimals: clonePtr(x.UnderlyingTokenDecimals),
		IndexingInfo:            clonePtr(x.IndexingInfo),
		CoingeckoID:             clonePtr(x.CoingeckoID),
		FeatureIndex:            clonePtr(x.FeatureIndex),
	}
	if x.order != nil {
		out.order = append([]string(nil), x.order...)
	}
	if x.Other != nil {
		out.Other = make(map[string]json.RawMessage, len(x.Other))
		for k, v := range x.Other {
			out.Other[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}
