package auth

import (
	"errors"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrReadOnly = errors.New("token source is read-only")

// TokenSource is one backing location for the bearer credential. Sources are
// consulted in order; a read error from one source never fails the lookup as
// a whole.
type TokenSource interface {
	Name() string
	Read() (string, error)
	Write(token string) error
	Clear() error
}

type fileToken struct {
	Token string `yaml:"token"`
}

// FileSource persists the credential as YAML on disk. It is the primary,
// durable location.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var ft fileToken
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return "", err
	}
	return ft.Token, nil
}

func (f *FileSource) Write(token string) error {
	data, err := yaml.Marshal(fileToken{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}

func (f *FileSource) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EnvSource reads the credential from a process environment variable, the
// session-scoped fallback location.
type EnvSource struct {
	key string
}

func NewEnvSource(key string) *EnvSource {
	return &EnvSource{key: key}
}

func (e *EnvSource) Name() string { return "env" }

func (e *EnvSource) Read() (string, error) {
	return os.Getenv(e.key), nil
}

func (e *EnvSource) Write(string) error { return ErrReadOnly }

func (e *EnvSource) Clear() error {
	return os.Unsetenv(e.key)
}

// MemorySource holds the credential in process memory, used after an
// in-process login and by tests.
type MemorySource struct {
	mu    sync.Mutex
	token string
}

func NewMemorySource(token string) *MemorySource {
	return &MemorySource{token: token}
}

func (m *MemorySource) Name() string { return "memory" }

func (m *MemorySource) Read() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemorySource) Write(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemorySource) Clear() error {
	return m.Write("")
}
