// Package sshcli runs show commands on CLI-managed devices over SSH.
package sshcli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// DefaultPort is the SSH port used when Config.Port is zero.
const DefaultPort = 22

// ErrNoCredentials is returned when neither password nor token is set.
var ErrNoCredentials = errors.New("ssh: username and password are required")

// Config tunes SSH sessions.
type Config struct {
	Port    int
	Timeout time.Duration
	// KnownHostsFile enables host key checking. Empty accepts any key.
	KnownHostsFile string
}

// Runner executes one command on a host and returns its output.
type Runner interface {
	Run(ctx context.Context, host string, creds secrets.Credentials, command string) (string, error)
}

// Client is the x/crypto/ssh Runner.
type Client struct {
	cfg Config
}

// New returns a Client.
func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg}
}

func (c *Client) clientConfig(creds secrets.Credentials) (*ssh.ClientConfig, error) {
	if creds.Username == "" || creds.Secret() == "" {
		return nil, ErrNoCredentials
	}
	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec
	if c.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("ssh: loading known hosts: %w", err)
		}
		hostKey = cb
	}
	secret := creds.Secret()
	return &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(secret),
			// Many network operating systems only offer keyboard-interactive.
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = secret
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         c.cfg.Timeout,
	}, nil
}

// Run dials host, runs command in a new session and returns the combined
// output. Cancelling ctx closes the connection.
func (c *Client) Run(ctx context.Context, host string, creds secrets.Credentials, command string) (string, error) {
	config, err := c.clientConfig(creds)
	if err != nil {
		return "", err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
	log := util.WithFields(map[string]interface{}{"host": host, "component": "sshcli"})

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("ssh: dial %s: %w", addr, err)
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh: handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sc, chans, reqs)
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh: session: %w", err)
	}
	defer session.Close()

	log.Debugf("running %q", command)
	out, err := session.CombinedOutput(command)
	if ctx.Err() != nil {
		return string(out), ctx.Err()
	}
	if err != nil {
		return string(out), fmt.Errorf("ssh: %q on %s: %w", command, host, err)
	}
	return string(out), nil
}
