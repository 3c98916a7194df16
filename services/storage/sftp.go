package storage

import (
	"BUREAU/config"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoHostKey is returned by NewSFTPStore when the server key cannot be
// verified and the insecure opt-in is not set.
var ErrNoHostKey = errors.New("sftp: SFTP_HOST_KEY or SFTP_KNOWN_HOSTS is required")

// SFTPStore uploads objects to a remote host whose base path is published at
// PublicURL (e.g. behind nginx or a CDN).
type SFTPStore struct {
	addr      string
	basePath  string
	publicURL string
	timeout   time.Duration
	ssh       *ssh.ClientConfig
}

func NewSFTPStore(cfg config.SFTPConfig, timeout time.Duration) (*SFTPStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sftp: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	auth, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	return &SFTPStore{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		basePath:  cfg.BasePath,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		timeout:   timeout,
		ssh: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		},
	}, nil
}

// authMethod prefers the key file over the password.
func authMethod(cfg config.SFTPConfig) (ssh.AuthMethod, error) {
	if cfg.KeyFile == "" {
		if cfg.Password == "" {
			return nil, fmt.Errorf("sftp: no authentication method provided")
		}
		return ssh.Password(cfg.Password), nil
	}

	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("sftp: read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("sftp: parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func hostKeyCallback(cfg config.SFTPConfig) (ssh.HostKeyCallback, error) {
	switch {
	case cfg.HostKey != "":
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.HostKey))
		if err != nil {
			return nil, fmt.Errorf("sftp: parse host key: %w", err)
		}
		return ssh.FixedHostKey(key), nil
	case cfg.KnownHostsFile != "":
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: load known hosts: %w", err)
		}
		return cb, nil
	case cfg.InsecureSkipHostKey:
		return ssh.InsecureIgnoreHostKey(), nil
	default:
		return nil, ErrNoHostKey
	}
}

func (s *SFTPStore) Remote() bool { return true }

// session is an SFTP client together with the SSH connection it runs on.
type session struct {
	*sftp.Client
	conn *ssh.Client
}

func (s session) Close() error {
	s.Client.Close()
	return s.conn.Close()
}

// connect dials the host and opens an SFTP session. ctx bounds the dial, the
// handshake and every later read or write on the connection.
func (s *SFTPStore) connect(ctx context.Context) (*session, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("sftp: connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(raw, s.addr, s.ssh)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("sftp: handshake: %w", err)
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp: open session: %w", err)
	}
	return &session{Client: client, conn: conn}, nil
}

func (s *SFTPStore) Put(ctx context.Context, data []byte, name, _ string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	remotePath := path.Join(s.basePath, name)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("sftp: failed to create directory: %w", err)
	}

	f, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp: failed to create %s: %w", remotePath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("sftp: failed to write %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("sftp: failed to close %s: %w", remotePath, err)
	}

	return s.publicURL + "/" + name, nil
}

// Delete removes an object previously returned by Put. Foreign URLs are ignored.
func (s *SFTPStore) Delete(ctx context.Context, url string) error {
	name, ok := s.objectName(url)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Remove(path.Join(s.basePath, name)); err != nil {
		return fmt.Errorf("sftp: failed to delete %s: %w", name, err)
	}
	return nil
}

func (s *SFTPStore) objectName(url string) (string, bool) {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name, err := cleanName(strings.TrimPrefix(url, prefix))
	if err != nil {
		return "", false
	}
	return name, true
}
