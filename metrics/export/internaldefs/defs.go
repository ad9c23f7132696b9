package internaldefs

import (
	"github.com/MrEthical07/otpgate"
)

type CounterDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

const AuditDroppedName = "otpgate_audit_dropped_total"

const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: otpgate.MetricSignupSuccess, Name: "otpgate_signup_success_total", Help: "Signups that stored a pending registration and sent a code."},
	{ID: otpgate.MetricSignupFailure, Name: "otpgate_signup_failure_total", Help: "Failed signups."},
	{ID: otpgate.MetricSignupAccountExists, Name: "otpgate_signup_account_exists_total", Help: "Signups rejected because the account already exists."},
	{ID: otpgate.MetricResendSuccess, Name: "otpgate_resend_success_total", Help: "Codes resent."},
	{ID: otpgate.MetricResendFailure, Name: "otpgate_resend_failure_total", Help: "Failed resends."},
	{ID: otpgate.MetricCodeIssued, Name: "otpgate_code_issued_total", Help: "Codes persisted."},
	{ID: otpgate.MetricNotificationFailure, Name: "otpgate_notification_failure_total", Help: "Code deliveries that failed."},
	{ID: otpgate.MetricVerifySuccess, Name: "otpgate_verify_success_total", Help: "Verifications that created an account."},
	{ID: otpgate.MetricVerifyInvalidCode, Name: "otpgate_verify_invalid_code_total", Help: "Verifications with a wrong or missing code."},
	{ID: otpgate.MetricVerifyExpired, Name: "otpgate_verify_expired_total", Help: "Verifications with an expired code."},
	{ID: otpgate.MetricVerifyConflict, Name: "otpgate_verify_conflict_total", Help: "Verifications that lost the account creation race."},
	{ID: otpgate.MetricVerifyFailure, Name: "otpgate_verify_failure_total", Help: "Verifications failed for other reasons."},
	{ID: otpgate.MetricCredentialIssued, Name: "otpgate_credential_issued_total", Help: "Credentials created."},
	{ID: otpgate.MetricCredentialIssuanceFailure, Name: "otpgate_credential_issuance_failure_total", Help: "Credential issuance failures."},
	{ID: otpgate.MetricCleanupFailure, Name: "otpgate_cleanup_failure_total", Help: "Post-verify cleanup steps that failed."},
	{ID: otpgate.MetricLoginSuccess, Name: "otpgate_login_success_total", Help: "Successful logins."},
	{ID: otpgate.MetricLoginFailure, Name: "otpgate_login_failure_total", Help: "Failed logins."},
	{ID: otpgate.MetricAuthenticateFailure, Name: "otpgate_authenticate_failure_total", Help: "Bearer credentials that did not resolve to an account."},
}

var HistogramDefs = []HistogramDef{
	{ID: otpgate.MetricVerifyLatency, Name: "otpgate_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight-slot array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
