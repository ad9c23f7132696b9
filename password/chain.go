package password

// Scheme is implemented by the hashers in this package.
type Scheme interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	MaxPasswordBytes() int
	recognizes(encodedHash string) bool
}

// Chain hashes with its primary Scheme and verifies with whichever scheme
// recognizes the stored hash.
type Chain struct {
	primary Scheme
	legacy  []Scheme
}

// NewChain accepts *Argon2 and *Bcrypt values. primary is also tried for
// verification.
func NewChain(primary Scheme, legacy ...Scheme) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

// MaxPasswordBytes is the primary scheme's limit; only the primary hashes.
func (c *Chain) MaxPasswordBytes() int {
	return c.primary.MaxPasswordBytes()
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	if c.primary.recognizes(encodedHash) {
		return c.primary.Verify(password, encodedHash)
	}
	for _, s := range c.legacy {
		if s.recognizes(encodedHash) {
			return s.Verify(password, encodedHash)
		}
	}
	return false, ErrMalformedHash
}
