package shared

import (
	"context"
	"log/slog"
)

// NotificationKind classifies user-facing notifications.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyInfo    NotificationKind = "info"
)

// Notification is a message the caller may surface to a user.
type Notification struct {
	Kind    NotificationKind
	Subject string
	Message string
	Meta    map[string]any
}

// Notifier receives notifications produced by domain operations. The caller
// owns delivery and lifetime; services never keep them.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// NopNotifier drops everything.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) {}

// LogNotifier writes notifications to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	if l.Logger == nil {
		return
	}
	level := slog.LevelInfo
	if n.Kind == NotifyError {
		level = slog.LevelWarn
	}
	attrs := []any{slog.String("kind", string(n.Kind)), slog.String("subject", n.Subject)}
	for k, v := range n.Meta {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.Logger.Log(ctx, level, n.Message, attrs...)
}
