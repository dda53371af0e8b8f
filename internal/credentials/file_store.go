package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	keySize         = chacha20poly1305.KeySize

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var (
	// ErrEmptyPassphrase is returned when no passphrase is configured.
	ErrEmptyPassphrase = errors.New("credentials: passphrase is required")
	// ErrEmptyPath is returned when no file path is configured.
	ErrEmptyPath = errors.New("credentials: file path is required")
	// ErrDecryptionFailed covers a wrong passphrase and a tampered file.
	ErrDecryptionFailed = errors.New("credentials: decryption failed")
	// ErrInvalidEnvelope is returned when the file is not a credentials envelope.
	ErrInvalidEnvelope = errors.New("credentials: invalid file format")
)

type envelope struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// FileStore reads and writes the encrypted credentials file.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &FileStore{path: path, passphrase: []byte(passphrase)}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored config. A missing file yields an empty config.
func (s *FileStore) Load() (RemoteConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return RemoteConfig{}, nil
	}
	if err != nil {
		return RemoteConfig{}, fmt.Errorf("credentials: read %s: %w", s.path, err)
	}

	var sealed envelope
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return RemoteConfig{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if sealed.Version != envelopeVersion {
		return RemoteConfig{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidEnvelope, sealed.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil || len(salt) != saltSize {
		return RemoteConfig{}, fmt.Errorf("%w: salt", ErrInvalidEnvelope)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return RemoteConfig{}, fmt.Errorf("%w: nonce", ErrInvalidEnvelope)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return RemoteConfig{}, fmt.Errorf("%w: ciphertext", ErrInvalidEnvelope)
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return RemoteConfig{}, fmt.Errorf("credentials: cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return RemoteConfig{}, ErrDecryptionFailed
	}

	var config RemoteConfig
	if err := json.Unmarshal(plaintext, &config); err != nil {
		return RemoteConfig{}, fmt.Errorf("%w: payload", ErrInvalidEnvelope)
	}
	return config.normalized(), nil
}

// Save encrypts config and replaces the file atomically with mode 0600.
func (s *FileStore) Save(config RemoteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(config.normalized())
	if err != nil {
		return fmt.Errorf("credentials: encode: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("credentials: salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("credentials: nonce: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return fmt.Errorf("credentials: cipher: %w", err)
	}
	sealed := envelope{
		Version:    envelopeVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}
	payload, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("credentials: encode envelope: %w", err)
	}

	directory := filepath.Dir(s.path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("credentials: create %s: %w", directory, err)
	}
	temporary, err := os.CreateTemp(directory, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credentials: temp file: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.Write(payload); err != nil {
		temporary.Close()
		return fmt.Errorf("credentials: write: %w", err)
	}
	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("credentials: chmod: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("credentials: close: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path); err != nil {
		return fmt.Errorf("credentials: replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) deriveKey(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, keySize)
}
