package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// lightweight per-user key/value file (0600) with AES-GCM obfuscation.
// Not a replacement for OS keychains but keeps tokens out of plain text.

const fileName = "session.json"

var ErrNotFound = errors.New("secrets: key not found")

type secretFile struct {
	Values map[string]string `json:"values"` // key -> base64(ciphertext)
}

// Store is a durable key/value store rooted at one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore keeps its file under dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultStore keeps its file under the user config dir.
func DefaultStore() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(dir, "despacho")), nil
}

func (s *Store) Put(key, value string) error {
	if key = norm(key); key == "" {
		return fmt.Errorf("key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath()
	if err != nil {
		return err
	}
	sf, _ := load(path)
	if sf.Values == nil {
		sf.Values = map[string]string{}
	}
	ct, err := encrypt([]byte(value))
	if err != nil {
		return err
	}
	sf.Values[key] = base64.StdEncoding.EncodeToString(ct)
	return save(path, sf)
}

func (s *Store) Get(key string) (string, error) {
	if key = norm(key); key == "" {
		return "", fmt.Errorf("key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath()
	if err != nil {
		return "", err
	}
	sf, err := load(path)
	if err != nil {
		return "", err
	}
	enc, ok := sf.Values[key]
	if !ok {
		return "", ErrNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	pt, err := decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Delete removes keys; missing keys are not an error.
func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath()
	if err != nil {
		return err
	}
	sf, err := load(path)
	if err != nil {
		return err
	}
	if len(sf.Values) == 0 {
		return nil
	}
	for _, k := range keys {
		delete(sf.Values, norm(k))
	}
	return save(path, sf)
}

func (s *Store) filePath() (string, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil { // restrict directory
		return "", err
	}
	return filepath.Join(s.dir, fileName), nil
}

func load(path string) (secretFile, error) {
	var sf secretFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return secretFile{}, nil
		}
		return sf, err
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return sf, err
	}
	return sf, nil
}

func save(path string, sf secretFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func masterKey() []byte {
	base := fmt.Sprintf("despacho-%s-%s", runtime.GOOS, os.Getenv("USER"))
	hash := sha256.Sum256([]byte(base))
	return hash[:]
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encrypt(plain []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	body := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
