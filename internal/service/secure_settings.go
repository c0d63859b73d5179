package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
)

const sealedEncoding = "aes-gcm-v1"

// RedactedValue replaces sensitive setting values in listings.
const RedactedValue = `"***"`

type sealedValue struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// SettingsCipher encrypts sensitive setting values at rest with AES-GCM,
// using the setting key as additional data. The first key seals; every key
// is tried when opening so the primary can be rotated.
type SettingsCipher struct {
	aeads []cipher.AEAD
}

// NewSettingsCipher returns nil when no usable key is given, which leaves
// values in plain text.
func NewSettingsCipher(keys ...string) *SettingsCipher {
	c := &SettingsCipher{}
	seen := map[string]bool{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if aead := newGCM(parseCipherKey(k)); aead != nil {
			c.aeads = append(c.aeads, aead)
		}
	}
	if len(c.aeads) == 0 {
		return nil
	}
	return c
}

// IsSensitiveSetting reports whether key names a credential.
func IsSensitiveSetting(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, m := range []string{"secret", "token", "password", "api_key", "private_key", "webhook_url"} {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

func (c *SettingsCipher) Seal(key string, raw []byte) []byte {
	if c == nil || !IsSensitiveSetting(key) {
		return raw
	}
	aead := c.aeads[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return raw
	}
	ct := aead.Seal(nil, nonce, raw, additionalData(key))
	out, err := json.Marshal(sealedValue{
		Enc:   sealedEncoding,
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	})
	if err != nil {
		return raw
	}
	return out
}

// Open returns the plain value. Values that are not sealed, or that no key
// opens, come back unchanged.
func (c *SettingsCipher) Open(key string, raw []byte) []byte {
	if c == nil || len(raw) == 0 || !IsSensitiveSetting(key) {
		return raw
	}
	var v sealedValue
	if err := json.Unmarshal(raw, &v); err != nil || v.Enc != sealedEncoding {
		return raw
	}
	nonce, err := base64.StdEncoding.DecodeString(v.Nonce)
	if err != nil {
		return raw
	}
	ct, err := base64.StdEncoding.DecodeString(v.Data)
	if err != nil {
		return raw
	}
	for _, aead := range c.aeads {
		if pt, err := aead.Open(nil, nonce, ct, additionalData(key)); err == nil {
			return pt
		}
	}
	return raw
}

func additionalData(key string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(key)))
}

// parseCipherKey accepts base64 or raw bytes and trims to an AES key size.
func parseCipherKey(k string) []byte {
	b, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		b = []byte(k)
	}
	switch {
	case len(b) >= 32:
		return b[:32]
	case len(b) >= 24:
		return b[:24]
	case len(b) >= 16:
		return b[:16]
	}
	return nil
}

func newGCM(key []byte) cipher.AEAD {
	if len(key) == 0 {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	return aead
}
