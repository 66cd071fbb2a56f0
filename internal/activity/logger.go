package activity

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// appender is the storage interface consumed by Logger.
type appender interface {
	Append(ctx context.Context, e *Event) error
	AppendAudit(ctx context.Context, a *AuditEntry) error
}

// Logger records events off the request path. Writes are best-effort:
// failures are logged and never propagated, so a slow or broken activity
// store cannot fail a login.
type Logger struct {
	repo    appender
	logger  *zap.Logger
	timeout time.Duration
}

// NewLogger creates an activity Logger.
func NewLogger(repo appender, logger *zap.Logger) *Logger {
	return &Logger{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Activity records one activity event asynchronously.
func (l *Logger) Activity(userID string, t Type, message string, metadata map[string]string) {
	e := &Event{UserID: userID, Type: t, Message: message, Metadata: metadata}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.repo.Append(ctx, e); err != nil {
			l.logger.Warn("activity append failed",
				zap.String("user_id", userID),
				zap.String("type", string(t)),
				zap.Error(err),
			)
		}
	}()
}

// Audit records one audit entry asynchronously.
func (l *Logger) Audit(actorUserID, action, targetUserID string, severity Severity, ip, userAgent string) {
	a := &AuditEntry{
		ActorUserID:  actorUserID,
		Action:       action,
		TargetUserID: targetUserID,
		Severity:     severity,
		IP:           ip,
		UserAgent:    userAgent,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.repo.AppendAudit(ctx, a); err != nil {
			l.logger.Warn("audit append failed",
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}()
}
