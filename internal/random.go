package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strings"
)

const opaqueTokenSize = 20

// NewOpaqueToken returns 40 lowercase hex characters of crypto/rand output.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// TokenFingerprint is the index key under which a credential token is stored,
// so plaintext tokens never appear in key names.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewNumericCode draws a zero-padded code of the given length uniformly from
// [0, 10^digits) using r.
func NewNumericCode(r io.Reader, digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", errors.New("invalid code digits")
	}
	if r == nil {
		r = rand.Reader
	}

	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(r, max)
	if err != nil {
		return "", err
	}

	s := n.String()
	if len(s) < digits {
		s = strings.Repeat("0", digits-len(s)) + s
	}
	return s, nil
}
