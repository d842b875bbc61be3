// Package main provides imorning-chat-reply, which sends an inline reply
// through a running imorning-chat client. Notification actions and scripts
// invoke it with the conversation the notification was posted for. It also
// signs a running client in when no terminal is attached to it.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/imorning/chat/internal/control"
)

const requestTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath string
		status     bool
		account    string
	)

	flagSet := pflag.NewFlagSet("imorning-chat-reply", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", control.DefaultSocketPath(), "control socket of the running client")
	flagSet.BoolVar(&status, "status", false, "print the connection status and exit")
	flagSet.StringVar(&account, "login", "", "sign the running client in as `account`; the token is read from stdin")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: imorning-chat-reply [flags] <conversation> [text...]\n")
		fmt.Fprintf(os.Stderr, "       imorning-chat-reply --login <account>\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var token string
	if account != "" {
		var err error
		if token, err = readToken(os.Stdin, os.Stderr); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	remote, err := control.DialRemote(ctx, socketPath, nil)
	if err != nil {
		return err
	}
	defer remote.Close()

	if account != "" {
		info, err := remote.Login(ctx, account, token)
		if err != nil {
			return err
		}
		if info != "" {
			fmt.Println(info)
		}
		return nil
	}

	if status {
		result, err := remote.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("state: %s\n", result.State)
		if result.AccountID != "" {
			fmt.Printf("account: %s\n", result.AccountID)
		}
		fmt.Printf("receiver: %t\n", result.ReceiverLive)
		fmt.Printf("reconnect pending: %t\n", result.ReconnectPending)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return errors.New("conversation is required")
	}

	return remote.Reply(ctx, args[0], strings.Join(args[1:], " "))
}

// readToken reads the token without echo from a terminal, or as the first
// line of a pipe.
func readToken(in *os.File, prompt io.Writer) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(prompt, "Token: ")
		token, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return string(token), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
