// Package token implements Ed25519 session-token signing and
// verification (spec §4.8). A token is the ASCII string
// "<user_id>.<session_id_ulid>.<signature_hex>"; the signed message is
// the literal "<user_id>.<session_id_ulid>".
package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

var (
	ErrMalformed       = errors.New("token: malformed (wrong segment count)")
	ErrInvalidUserID   = errors.New("token: invalid user id")
	ErrInvalidSession  = errors.New("token: invalid session id")
	ErrSignatureBad    = errors.New("token: signature mismatch")
	ErrPEMDecode       = errors.New("token: pem decode failure")
)

type keypair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Signer signs and verifies session tokens. The active keypair is held
// behind an atomic pointer so reload_from_pem never locks out concurrent
// callers for more than a pointer swap (spec §4.8).
type Signer struct {
	key atomic.Pointer[keypair]
}

// New generates a fresh random Ed25519 signer.
func New() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("token: generate key: %w", err)
	}
	s := &Signer{}
	s.key.Store(&keypair{priv: priv, pub: pub})
	return s, nil
}

// NewFromFile loads a signer from a PEM file at path, generating and
// persisting a fresh key if the file does not exist.
func NewFromFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s, genErr := New()
		if genErr != nil {
			return nil, genErr
		}
		if writeErr := s.persist(path); writeErr != nil {
			return nil, writeErr
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("token: read pem file %s: %w", path, err)
	}
	s := &Signer{}
	if err := s.ReloadFromPEM(data); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Signer) persist(path string) error {
	pem, err := s.privatePEM()
	if err != nil {
		return err
	}
	return os.WriteFile(path, pem, 0o600)
}

func (s *Signer) privatePEM() ([]byte, error) {
	k := s.key.Load()
	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return nil, fmt.Errorf("token: marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// Message returns the literal signing input "<user_id>.<session_id>".
func Message(userID int32, sessionID ulid.ULID) []byte {
	return []byte(strconv.FormatInt(int64(userID), 10) + "." + sessionID.String())
}

// Sign returns the raw signature bytes over message.
func (s *Signer) Sign(message []byte) []byte {
	k := s.key.Load()
	return ed25519.Sign(k.priv, message)
}

// Verify reports whether signature is valid for message under the
// currently active key.
func (s *Signer) Verify(message, signature []byte) bool {
	k := s.key.Load()
	return ed25519.Verify(k.pub, message, signature)
}

// PublicKeyPEM returns the active public key, PEM-encoded SPKI.
func (s *Signer) PublicKeyPEM() (string, error) {
	k := s.key.Load()
	der, err := x509.MarshalPKIXPublicKey(k.pub)
	if err != nil {
		return "", fmt.Errorf("token: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ReloadFromPEM atomically replaces the signing key from PKCS8 PEM
// bytes.
func (s *Signer) ReloadFromPEM(data []byte) error {
	block, _ := pem.Decode(data)
	if block == nil {
		return ErrPEMDecode
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPEMDecode, err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("%w: not an ed25519 key", ErrPEMDecode)
	}
	s.key.Store(&keypair{priv: priv, pub: priv.Public().(ed25519.PublicKey)})
	return nil
}

// ReloadFromPEMFile reads path and calls ReloadFromPEM.
func (s *Signer) ReloadFromPEMFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("token: read pem file %s: %w", path, err)
	}
	return s.ReloadFromPEM(data)
}

// Token mints "<user_id>.<session_id>.<sig_hex>" for userID/sessionID.
func (s *Signer) Token(userID int32, sessionID ulid.ULID) string {
	msg := Message(userID, sessionID)
	sig := s.Sign(msg)
	return fmt.Sprintf("%d.%s.%s", userID, sessionID.String(), hex.EncodeToString(sig))
}

// Parse splits and verifies a token, returning the embedded user id and
// session id on success.
func (s *Signer) Parse(tok string) (userID int32, sessionID ulid.ULID, err error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return 0, ulid.ULID{}, ErrMalformed
	}
	uid, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, ulid.ULID{}, ErrInvalidUserID
	}
	sid, err := ulid.ParseStrict(parts[1])
	if err != nil {
		return 0, ulid.ULID{}, ErrInvalidSession
	}
	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		return 0, ulid.ULID{}, ErrSignatureBad
	}
	msg := Message(int32(uid), sid)
	if !s.Verify(msg, sig) {
		return 0, ulid.ULID{}, ErrSignatureBad
	}
	return int32(uid), sid, nil
}
