// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package acctledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
)

const (
	// Base62Alphabet is the symbol set tokens are drawn from.
	Base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// DefaultTokenLength is the total length of a token, prefix and
	// checksum included.
	DefaultTokenLength = 30

	// DefaultHashLength is the number of digest characters kept as the
	// token lookup key.
	DefaultHashLength = 24

	// checksumLength is the number of base-62 characters needed to hold a
	// CRC32 value.
	checksumLength = 6

	// minEntropyChars is the minimum number of random characters a token
	// must carry once the prefix and checksum are accounted for.
	minEntropyChars = 16
)

// TokenConfig holds the immutable parameters of token generation and hashing.
// The zero value is not usable; start from DefaultTokenConfig.
type TokenConfig struct {
	alphabet   string
	length     int
	hashLength int
	rand       io.Reader
}

// DefaultTokenConfig returns the configuration every deployment uses: 30
// characters from Base62Alphabet hashed down to 24 characters.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		alphabet:   Base62Alphabet,
		length:     DefaultTokenLength,
		hashLength: DefaultHashLength,
		rand:       rand.Reader,
	}
}

// WithRand returns a copy of the config drawing randomness from r. It is
// intended for tests.
func (c TokenConfig) WithRand(r io.Reader) TokenConfig {
	c.rand = r
	return c
}

// Length returns the total token length.
func (c TokenConfig) Length() int {
	return c.length
}

// HashLength returns the length of a token hash.
func (c TokenConfig) HashLength() int {
	return c.hashLength
}

// Generate returns a new token made of prefix, random characters and a CRC32
// checksum so that the whole string is Length characters long. The prefix
// may only contain alphabet characters and underscores.
func (c TokenConfig) Generate(prefix string) (string, error) {
	if err := c.CheckPrefix(prefix); err != nil {
		return "", err
	}

	n := c.length - len(prefix) - checksumLength
	random, err := c.randomString(n)
	if err != nil {
		return "", ledgerError(ErrDatabase, "unable to read "+
			"random source", err)
	}

	body := prefix + random
	return body + c.checksum(body), nil
}

// Verify reports whether token has the configured length and a valid
// checksum. A token failing Verify was never issued.
func (c TokenConfig) Verify(token string) bool {
	if len(token) != c.length {
		return false
	}
	body := token[:c.length-checksumLength]
	return token[c.length-checksumLength:] == c.checksum(body)
}

// Hash returns the lookup key of a token: the SHA-256 digest of the full
// token, base64 encoded with the URL safe alphabet and no padding, truncated
// to HashLength characters.
//
// Truncation keeps the index small at the cost of collision resistance. 24
// characters still carry 144 bits of the digest, and the hash column has a
// uniqueness constraint so a collision is rejected rather than shadowed.
func (c TokenConfig) Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	enc := base64.RawURLEncoding.EncodeToString(sum[:])
	return enc[:c.hashLength]
}

// HashToken hashes a token with the default configuration.
func HashToken(token string) string {
	return DefaultTokenConfig().Hash(token)
}

// CheckPrefix returns an ErrInvalidInput error if prefix cannot start a
// token: it may only hold alphabet characters and underscores, and must leave
// room for at least 16 random characters.
func (c TokenConfig) CheckPrefix(prefix string) error {
	for _, r := range prefix {
		if r == '_' || strings.ContainsRune(c.alphabet, r) {
			continue
		}
		str := fmt.Sprintf("prefix %q contains invalid character %q",
			prefix, r)
		return ledgerError(ErrInvalidInput, str, nil)
	}

	n := c.length - len(prefix) - checksumLength
	if n < minEntropyChars {
		str := fmt.Sprintf("prefix %q leaves %d random characters, "+
			"need at least %d", prefix, n, minEntropyChars)
		return ledgerError(ErrInvalidInput, str, nil)
	}
	return nil
}

// randomString draws n uniformly distributed alphabet characters. Bytes at or
// above the largest multiple of the alphabet size are rejected so that no
// symbol is favoured.
func (c TokenConfig) randomString(n int) (string, error) {
	size := len(c.alphabet)
	limit := 256 - 256%size

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2)
	for len(out) < n {
		if _, err := io.ReadFull(c.rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, c.alphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// checksum encodes the CRC32 of body as fixed width base-62.
func (c TokenConfig) checksum(body string) string {
	sum := uint64(crc32.ChecksumIEEE([]byte(body)))
	size := uint64(len(c.alphabet))

	out := make([]byte, checksumLength)
	for i := checksumLength - 1; i >= 0; i-- {
		out[i] = c.alphabet[sum%size]
		sum /= size
	}
	return string(out)
}
