package vault

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/chacha20poly1305"
)

// Names are sealed deterministically so a directory can be resolved without
// listing it: the nonce is a keyed hash of the cleartext parent path and
// name, and the parent path is bound as additional data so an entry moved
// between directories no longer opens.
var nameEncoding = base64.RawURLEncoding

func (k *keys) encryptName(parent, name string) string {
	mac := hmac.New(sha256.New, k.nameIV)
	mac.Write([]byte(parent))
	mac.Write([]byte{0})
	mac.Write([]byte(name))
	nonce := mac.Sum(nil)[:chacha20poly1305.NonceSizeX]

	out := k.names.Seal(nonce, nonce, []byte(name), []byte(parent))
	return nameEncoding.EncodeToString(out)
}

func (k *keys) decryptName(parent, encrypted string) (string, error) {
	raw, err := nameEncoding.DecodeString(encrypted)
	if err != nil || len(raw) < chacha20poly1305.NonceSizeX+tagSize {
		return "", errNameFormat
	}
	nonce, ct := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	name, err := k.names.Open(nil, nonce, ct, []byte(parent))
	if err != nil {
		return "", errNameFormat
	}
	return string(name), nil
}
