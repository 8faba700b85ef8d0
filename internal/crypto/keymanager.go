// Package crypto holds the wallet key material and the EIP-712 typed-data
// signing the relayer and the core contracts require.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Key files are PBKDF2-HMAC-SHA256 into AES-256-GCM. The iteration count is
// the current OWASP floor for SHA-256.
const (
	kdfIterations = 480_000
	kdfSaltLen    = 16
	kdfKeyLen     = 32
	keyFileV1     = 1
)

// keyFile is the on-disk shape of an encrypted wallet key. All binary fields
// are standard base64.
type keyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig names the places LoadKey may find the wallet key. A raw key wins
// over an encrypted file when both are set.
type KeyConfig struct {
	// RawPrivateKey is hex, 0x prefix optional.
	RawPrivateKey string
	// EncryptedKeyPath points at a file written by EncryptKey.
	EncryptedKeyPath string
	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// LoadKey resolves the wallet private key from cfg and returns it as bare hex.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw private key is not hex: %w", err)
		}
		return k, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no key source set: need a raw key or an encrypted key file")
}

// EncryptKey seals a hex private key under password and returns the JSON
// key-file bytes. Used by the encrypt-key command to prepare deployments.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: empty password")
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: want a 32-byte key, got %d bytes", len(keyBytes))
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}

	gcm, err := newKeyCipher(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	enc := base64.StdEncoding
	return json.MarshalIndent(keyFile{
		Version:    keyFileV1,
		Salt:       enc.EncodeToString(salt),
		Nonce:      enc.EncodeToString(nonce),
		Ciphertext: enc.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey opens a key file written by EncryptKey and returns the private
// key as bare hex.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: empty password")
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileV1 {
		return "", fmt.Errorf("crypto: key file version %d not supported", kf.Version)
	}

	enc := base64.StdEncoding
	salt, err := enc.DecodeString(kf.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: salt: %w", err)
	}
	nonce, err := enc.DecodeString(kf.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	ciphertext, err := enc.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: ciphertext: %w", err)
	}

	gcm, err := newKeyCipher(password, salt)
	if err != nil {
		return "", err
	}
	keyBytes, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open key file, likely a wrong password: %w", err)
	}
	return hex.EncodeToString(keyBytes), nil
}

func newKeyCipher(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}
