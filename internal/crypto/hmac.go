package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// GenerateHMAC returns the hex HMAC-SHA256 of data under key, or under the
// master secret when key is empty.
func (e *Engine) GenerateHMAC(data, key []byte) (string, error) {
	var sum []byte
	err := e.withSecret(key, func(secret []byte) error {
		mac := hmac.New(sha256.New, secret)
		mac.Write(data)
		sum = mac.Sum(nil)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// VerifyHMAC reports whether mac is the HMAC of data. The comparison is
// constant-time; a malformed mac is simply a mismatch.
func (e *Engine) VerifyHMAC(data []byte, mac string, key []byte) (bool, error) {
	want, err := hex.DecodeString(mac)
	if err != nil {
		return false, nil
	}
	got, err := e.GenerateHMAC(data, key)
	if err != nil {
		return false, err
	}
	gotRaw, _ := hex.DecodeString(got)
	return hmac.Equal(gotRaw, want), nil
}
