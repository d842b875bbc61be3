package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/imorning/chat/internal/login"
)

// prompter asks for credentials on the terminal. Only one prompt is shown
// at a time.
type prompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
	active atomic.Bool
}

func newPrompter(in *os.File, out io.Writer) *prompter {
	return &prompter{in: in, out: out, reader: bufio.NewReader(in)}
}

// Prompt reads an account and token and signs in with them. The account
// defaults to the one last used.
func (p *prompter) Prompt(ctx context.Context, lc *login.Controller) {
	if !p.active.CompareAndSwap(false, true) {
		return
	}
	defer p.active.Store(false)

	if !p.interactive() {
		slog.Error("Sign-in required but stdin is not a terminal")
		return
	}

	for ctx.Err() == nil {
		account, token, err := p.read(lc.Status().AccountID)
		if err != nil {
			slog.Error("Failed to read credentials", "error", err)
			return
		}

		info, err := lc.SignIn(ctx, account, token)
		if err == nil {
			if info != "" {
				fmt.Fprintln(p.out, info)
			}
			return
		}
		fmt.Fprintln(p.out, login.Message(err))
	}
}

// interactive reports whether stdin is a terminal.
func (p *prompter) interactive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

func (p *prompter) read(lastAccount string) (string, string, error) {
	if lastAccount != "" {
		fmt.Fprintf(p.out, "Account [%s]: ", lastAccount)
	} else {
		fmt.Fprint(p.out, "Account: ")
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", err
	}
	account := strings.TrimSpace(line)
	if account == "" {
		account = lastAccount
	}
	if account == "" {
		return "", "", errors.New("account is required")
	}

	fmt.Fprint(p.out, "Token: ")
	token, err := term.ReadPassword(int(p.in.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", "", fmt.Errorf("reading token: %w", err)
	}

	return account, string(token), nil
}
