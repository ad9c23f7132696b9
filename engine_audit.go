package otpgate

import (
	"context"
	"time"
)

const (
	auditEventSignup       = "registration_signup"
	auditEventResend       = "registration_resend"
	auditEventVerify       = "registration_verify"
	auditEventCleanup      = "registration_cleanup"
	auditEventLogin        = "auth_login"
	auditEventAuthenticate = "auth_authenticate"
)

// auditor stamps and forwards events to the dispatcher. The zero value is a no-op.
type auditor struct {
	dispatcher *auditDispatcher
	now        func() time.Time
}

func (a auditor) emit(
	ctx context.Context,
	eventType string,
	success bool,
	email, accountID string,
	err error,
	metadata func() map[string]string,
) {
	if a.dispatcher == nil {
		return
	}

	event := AuditEvent{
		EventType: eventType,
		Email:     email,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if a.now != nil {
		event.Timestamp = a.now().UTC()
	} else {
		event.Timestamp = time.Now().UTC()
	}
	if err != nil {
		event.Error = err.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	a.dispatcher.Emit(ctx, event)
}

func reasonMetadata(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"reason": reason}
	}
}
