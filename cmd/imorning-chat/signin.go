package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imorning/chat/internal/login"
	"github.com/imorning/chat/internal/session"
)

// signInRouter hands a required sign-in to the terminal prompt when stdin
// is a terminal. Otherwise it tells the user to sign in through the
// control socket with imorning-chat-reply.
type signInRouter struct {
	interactive bool
	prompt      func(ctx context.Context, lc *login.Controller)
	notifier    session.Notifier
}

func newSignInRouter(p *prompter, notifier session.Notifier) *signInRouter {
	return &signInRouter{
		interactive: p.interactive(),
		prompt:      p.Prompt,
		notifier:    notifier,
	}
}

// route runs on the dispatch context and must not block.
func (r *signInRouter) route(ctx context.Context, lc *login.Controller, cause error) {
	slog.Warn("Sign-in required", "reason", cause)

	if r.interactive {
		go r.prompt(ctx, lc)
		return
	}

	account := lc.Status().AccountID
	if account == "" {
		account = "<account>"
	}
	r.notifier.Notice("Sign-in required",
		fmt.Sprintf("Run imorning-chat-reply --login %s to sign in.", account))
}
