package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// EncryptName deterministically encrypts a single path segment with
// AES-GCM, producing a URL-safe base64 string suitable as a cloud name.
// Determinism (same plaintext always yields the same ciphertext) is
// required so repeated ListAll scans recognize the same remote name
// without needing a side index; the nonce is derived from the plaintext
// via SHA-256 rather than drawn at random.
func EncryptName(plainName string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceHash := sha256.Sum256([]byte(plainName))
	nonce := nonceHash[:aesGCM.NonceSize()]

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plainName), nil)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// DecryptName reverses EncryptName.
func DecryptName(encryptedName string, key []byte) (string, error) {
	data, err := base64.URLEncoding.DecodeString(encryptedName)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("encrypted name too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
