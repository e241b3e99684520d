package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/ini.v1"
)

// ErrMissingCredentials is returned when the credentials artifact lacks a
// required entry.
var ErrMissingCredentials = errors.New("missing credentials")

const (
	credentialsSection = "STORAGE"
	accessKeyIDKey     = "AWS_ACCESS_KEY_ID"
	secretAccessKeyKey = "AWS_SECRET_ACCESS_KEY"
)

// Credentials are the object-store keys read from the [STORAGE] section.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// LoadCredentials reads the [STORAGE] section of an INI file.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	creds, err := ParseCredentials(data)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", path, err)
	}
	return creds, nil
}

// ParseCredentials reads the [STORAGE] section from INI content.
func ParseCredentials(data []byte) (Credentials, error) {
	f, err := ini.Load(data)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}

	sec, err := f.GetSection(credentialsSection)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: no [%s] section", ErrMissingCredentials, credentialsSection)
	}

	var creds Credentials
	for key, dst := range map[string]*string{
		accessKeyIDKey:     &creds.AccessKeyID,
		secretAccessKeyKey: &creds.SecretAccessKey,
	} {
		if !sec.HasKey(key) || sec.Key(key).String() == "" {
			return Credentials{}, fmt.Errorf("%w: [%s] %s", ErrMissingCredentials, credentialsSection, key)
		}
		*dst = sec.Key(key).String()
	}

	return creds, nil
}

// LoadRunCredentials loads the credentials artifact named by the config. It
// returns nil when the artifact is absent and no backend needs credentials;
// an S3 backend without the artifact is an ErrMissingCredentials error.
func (c *Config) LoadRunCredentials() (*Credentials, error) {
	if c.CredentialsFile == "" {
		if c.NeedsCredentials() {
			return nil, fmt.Errorf("%w: credentials_file is required for s3 backends", ErrMissingCredentials)
		}
		return nil, nil
	}

	if _, err := os.Stat(c.CredentialsFile); errors.Is(err, fs.ErrNotExist) {
		if c.NeedsCredentials() {
			return nil, fmt.Errorf("%w: %s not found", ErrMissingCredentials, c.CredentialsFile)
		}
		return nil, nil
	}

	creds, err := LoadCredentials(c.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

// Export publishes the keys through the standard AWS environment variables,
// which the S3 drivers read when opening buckets.
func (c Credentials) Export() error {
	if err := os.Setenv(accessKeyIDKey, c.AccessKeyID); err != nil {
		return fmt.Errorf("export %s: %w", accessKeyIDKey, err)
	}
	if err := os.Setenv(secretAccessKeyKey, c.SecretAccessKey); err != nil {
		return fmt.Errorf("export %s: %w", secretAccessKeyKey, err)
	}
	return nil
}
