package otpgate

import (
	"crypto/rand"
	"io"

	"github.com/MrEthical07/otpgate/internal"
)

// CodeGenerator produces a 6-digit numeric code.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator. Tests use it to
// supply deterministic codes.
type CodeGeneratorFunc func() (string, error)

// Generate calls f.
func (f CodeGeneratorFunc) Generate() (string, error) {
	return f()
}

type randomCodeGenerator struct {
	source io.Reader
}

// NewCodeGenerator returns a generator drawing uniformly over 000000-999999
// from source. A nil source means crypto/rand.Reader; callers passing their
// own must supply cryptographically secure bytes.
func NewCodeGenerator(source io.Reader) CodeGenerator {
	if source == nil {
		source = rand.Reader
	}
	return randomCodeGenerator{source: source}
}

func (g randomCodeGenerator) Generate() (string, error) {
	return internal.NewNumericCode(g.source, codeLength)
}

type opaqueTokenIssuer struct{}

// IssueToken ignores accountID; the token is pure randomness.
func (opaqueTokenIssuer) IssueToken(string) (string, error) {
	return internal.NewOpaqueToken()
}

// OpaqueTokenIssuer returns the default TokenIssuer: 40 hex characters from crypto/rand.
func OpaqueTokenIssuer() TokenIssuer {
	return opaqueTokenIssuer{}
}
