// Package vault stores ReportBrief's secrets (the summarizer API key and the
// session signing secret) in the OS keychain, with environment fallbacks.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "reportbrief"

// Well-known secret names.
const (
	KeyAnthropic = "anthropic"
	KeyJWT       = "jwt"
	KeyProxy     = "proxy"
)

// knownKeys is the list of names checked by List.
var knownKeys = []string{KeyAnthropic, KeyJWT, KeyProxy}

// Vault reads and writes secrets in the OS keychain.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// EnvVar is the environment variable consulted when name is not in the
// keychain.
func EnvVar(name string) string {
	return "REPORTBRIEF_KEY_" + strings.ToUpper(name)
}

// Set stores a secret under name in the OS keychain.
func (v *Vault) Set(name, secret string) error {
	return keyring.Set(serviceName, name, secret)
}

// Get returns the secret stored under name, checking the keychain first and
// EnvVar(name) second.
func (v *Vault) Get(name string) (string, error) {
	secret, err := keyring.Get(serviceName, name)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := EnvVar(name)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no secret found for %q: not in keychain and %s not set", name, envKey)
}

// Delete removes the secret stored under name from the OS keychain.
func (v *Vault) Delete(name string) error {
	return keyring.Delete(serviceName, name)
}

// List returns the well-known names that currently resolve to a secret.
func (v *Vault) List() ([]string, error) {
	var names []string
	for _, name := range knownKeys {
		if _, err := v.Get(name); err == nil {
			names = append(names, name)
		}
	}
	return names, nil
}

// GenerateSecret returns a random hex-encoded secret of n bytes, suitable for
// HS256 signing.
func GenerateSecret(n int) (string, error) {
	if n < 16 {
		n = 16
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ResolveKeyRef parses a secret reference and returns the secret it names.
// Supported formats:
//   - "keyring://reportbrief/<name>"
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/secret" (plain-text file, surrounding whitespace trimmed)
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	switch {
	case strings.HasPrefix(keyRef, "keyring://"):
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://%s/<name>\")", keyRef, serviceName)
		}
		return v.Get(parts[1])

	case strings.HasPrefix(keyRef, "env:"):
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)

	case strings.HasPrefix(keyRef, "file://"):
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://%s/<name>\", \"env:VARIABLE_NAME\", or \"file:///path/to/secret\")", keyRef, serviceName)
}
