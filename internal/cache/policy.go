package cache

import (
	"encoding/json"
	"errors"

	"github.com/iliyamo/card-tracking/internal/encryption"
)

var errNoCipher = errors.New("cache: sensitive key but no cipher configured")

// seal serialises value and applies the encryption policy of key.
func (c *GeoCache) seal(key string, value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	m := policyFor(key)
	if m == plain {
		return b, nil
	}
	if c.cipher == nil {
		return nil, errNoCipher
	}
	if m == fields {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err == nil && obj != nil {
			for name, v := range obj {
				if !sealedFields[name] || string(v) == "null" {
					continue
				}
				enc, err := c.cipher.Encrypt(string(v))
				if err != nil {
					return nil, err
				}
				obj[name], _ = json.Marshal(enc)
			}
			return json.Marshal(obj)
		}
		// not an object, fall through and seal it whole
	}
	enc, err := c.cipher.Encrypt(string(b))
	if err != nil {
		return nil, err
	}
	return []byte(enc), nil
}

// open reverses seal.  Payloads without the encryption framing are
// returned as-is so entries written before a key became sensitive still
// decode.
func (c *GeoCache) open(key string, raw []byte) ([]byte, error) {
	m := policyFor(key)
	if m == plain {
		return raw, nil
	}
	if encryption.IsEncrypted(string(raw)) {
		if c.cipher == nil {
			return nil, errNoCipher
		}
		s, err := c.cipher.Decrypt(string(raw))
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	if m != fields {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return raw, nil
	}
	for name, v := range obj {
		if !sealedFields[name] {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil || !encryption.IsEncrypted(s) {
			continue
		}
		if c.cipher == nil {
			return nil, errNoCipher
		}
		plainText, err := c.cipher.Decrypt(s)
		if err != nil {
			return nil, err
		}
		obj[name] = json.RawMessage(plainText)
	}
	return json.Marshal(obj)
}
