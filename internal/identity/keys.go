package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

const (
	signingKeyFile = "signing.key"
	signingKeyBits = 2048
)

// SigningKey manages the RSA key pair used to sign ID tokens and session
// cookies. It creates and persists a key to disk on first run, then reloads
// it on subsequent starts so issued tokens survive restarts.
type SigningKey struct {
	dir string
	key *rsa.PrivateKey
	kid string
}

// NewSigningKey returns a SigningKey that stores its key file in dir.
func NewSigningKey(dir string) *SigningKey {
	return &SigningKey{dir: dir}
}

// LoadOrCreate loads the key from disk if it exists; creates a new one otherwise.
func (k *SigningKey) LoadOrCreate() error {
	if err := k.Load(); err == nil {
		return nil
	}
	return k.Create()
}

// Load reads an existing signing key from the configured directory.
func (k *SigningKey) Load() error {
	keyPEM, err := os.ReadFile(filepath.Join(k.dir, signingKeyFile))
	if err != nil {
		return fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return fmt.Errorf("signing key file is not a PEM RSA private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse signing key: %w", err)
	}
	k.setKey(key)
	return nil
}

// Create generates a new RSA key, saves it to disk, and activates it.
func (k *SigningKey) Create() error {
	if err := os.MkdirAll(k.dir, 0o700); err != nil {
		return fmt.Errorf("create key dir %q: %w", k.dir, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(k.dir, signingKeyFile), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}

	k.setKey(key)
	return nil
}

// NewEphemeralSigningKey generates an in-memory key that is never persisted.
// Intended for tests.
func NewEphemeralSigningKey() (*SigningKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	k := &SigningKey{}
	k.setKey(key)
	return k, nil
}

func (k *SigningKey) setKey(key *rsa.PrivateKey) {
	k.key = key
	// Key ID is derived from the public modulus so it is stable across restarts.
	sum := sha256.Sum256(key.PublicKey.N.Bytes())
	k.kid = hex.EncodeToString(sum[:8])
}

// Key returns the private key.
func (k *SigningKey) Key() *rsa.PrivateKey { return k.key }

// Public returns the public half of the key pair.
func (k *SigningKey) Public() *rsa.PublicKey { return &k.key.PublicKey }

// KeyID returns the stable identifier placed in the "kid" header of signed tokens.
func (k *SigningKey) KeyID() string { return k.kid }

// JWKS returns the public key set served at /.well-known/jwks.json.
func (k *SigningKey) JWKS() JWKSet {
	return JWKSet{Keys: []JWK{rsaPublicKeyToJWK(k.Public(), k.kid)}}
}
