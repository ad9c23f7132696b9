// Package httpapi exposes the otpgate engine over JSON/HTTP with chi.
//
// Routes:
//
//	POST /signup/      first_name, last_name, email, password
//	POST /resend-otp/  email
//	POST /verify-otp/  email, otp
//	POST /login/       email, password
//	GET  /me/          Authorization: Bearer <token>
//
// Every response body is a JSON object with a "message" field. Error status
// codes follow otpgate.KindOf.
package httpapi
