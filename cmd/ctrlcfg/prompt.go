package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/newtron-network/ctrlcfg/pkg/secrets"
)

// fixedProvider serves the same credentials for every ref.
type fixedProvider struct {
	creds secrets.Credentials
}

func (p fixedProvider) Credentials(context.Context, string) (secrets.Credentials, error) {
	return p.creds, nil
}

// promptCredentials reads a username and a hidden password. Input that is
// not a terminal is read line by line.
func promptCredentials(in *os.File, out io.Writer) (secrets.Credentials, error) {
	r := bufio.NewReader(in)
	fmt.Fprint(out, "Username: ")
	user, err := r.ReadString('\n')
	if err != nil && user == "" {
		return secrets.Credentials{}, fmt.Errorf("reading username: %w", err)
	}

	fmt.Fprint(out, "Password: ")
	var pass string
	if term.IsTerminal(int(in.Fd())) {
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return secrets.Credentials{}, fmt.Errorf("reading password: %w", err)
		}
		pass = string(b)
	} else {
		pass, err = r.ReadString('\n')
		if err != nil && pass == "" {
			return secrets.Credentials{}, fmt.Errorf("reading password: %w", err)
		}
	}
	return secrets.Credentials{
		Username: strings.TrimSpace(user),
		Password: strings.TrimRight(pass, "\r\n"),
	}, nil
}
