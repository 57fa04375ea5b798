// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mailer

import (
	"context"
	"log/slog"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
)

// LogSender writes messages to the structured log instead of delivering them.
// Used in development.
type LogSender struct{}

// NewLogSender creates a [LogSender].
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send implements [Sender].
func (sender *LogSender) Send(context context.Context, message Message) error {
	ctxutil.GetLogger(context).InfoContext(context, "email_logged",
		slog.String("to", message.To),
		slog.String("subject", message.Subject),
		slog.String("body", message.Body),
	)
	return nil
}
