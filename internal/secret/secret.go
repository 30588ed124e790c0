// Package secret manages lazily generated, persisted random secrets.
package secret

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
)

// fileName is the blob the value lives in, inside FileService(secret, "files").
const fileName = "secret"

// size is the number of random bytes in a generated secret.
const size = 64

// Secret is a random value owned by a resource. The first Read creates it;
// concurrent creators on any number of processes agree on one value.
type Secret struct {
	res   *resource.Resource
	files store.FileService

	mu          sync.Mutex
	initialized bool
}

// New creates the Secret (scope, id), storing through factory.
func New(scope resource.Scope, id string, factory store.Factory) (*Secret, error) {
	res := resource.New(scope, id)
	files, err := factory(res, "files")
	if err != nil {
		return nil, fmt.Errorf("opening secret storage: %w", err)
	}
	return &Secret{res: res, files: files}, nil
}

// Resource returns the resource identifying the secret.
func (s *Secret) Resource() *resource.Resource { return s.res }

// Read returns the secret, generating and storing it on first use.
func (s *Secret) Read(ctx context.Context) (string, error) {
	if err := s.init(ctx); err != nil {
		return "", err
	}
	data, err := s.files.Read(ctx, fileName)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return "", fmt.Errorf("decoding secret: %w", err)
	}
	return value, nil
}

// Write replaces the stored value.
func (s *Secret) Write(ctx context.Context, value string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.files.Write(ctx, fileName, data); err != nil {
		return fmt.Errorf("writing secret: %w", err)
	}
	return nil
}

func (s *Secret) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	value, err := generate()
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	err = s.files.Write(ctx, fileName, data, store.OnlyIfNotExists())
	if err != nil && !s.files.IsAlreadyExists(err) {
		return fmt.Errorf("creating secret: %w", err)
	}
	s.initialized = true
	return nil
}

func generate() (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
