// Package codegen issues short share codes with sqids.
package codegen

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand"

	"github.com/sharegate/sharegate/internal/share"
	"github.com/sirupsen/logrus"
	"github.com/sqids/sqids-go"
)

// DefaultAlphabet is used when no seed is configured
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxAttempts bounds collision retries
const maxAttempts = 8

var (
	ErrInvalidLength = errors.New("invalid share code length bounds")
	ErrExhausted     = errors.New("could not find an unused share code")
)

// Lookup checks whether a code is already taken
type Lookup interface {
	GetByCode(ctx context.Context, code string) (*share.ShareLink, error)
}

// Options configures a Generator
type Options struct {
	MinLength    int
	MaxLength    int
	AlphabetSeed string
}

// Generator implements share.CodeProvider
type Generator struct {
	encoder   *sqids.Sqids
	minLength int
	maxLength int
	lookup    Lookup
	random    func() (uint64, error)
	logger    *logrus.Logger
}

// NewGenerator creates a generator that checks candidates against lookup
func NewGenerator(opts Options, lookup Lookup, logger *logrus.Logger) (*Generator, error) {
	if opts.MinLength < 1 || opts.MinLength > 255 || opts.MaxLength < opts.MinLength {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrInvalidLength, opts.MinLength, opts.MaxLength)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	alphabet := DefaultAlphabet
	if opts.AlphabetSeed != "" {
		alphabet = shuffleAlphabet(opts.AlphabetSeed)
	}

	encoder, err := sqids.New(sqids.Options{
		MinLength: uint8(opts.MinLength),
		Alphabet:  alphabet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sqids encoder: %w", err)
	}

	return &Generator{
		encoder:   encoder,
		minLength: opts.MinLength,
		maxLength: opts.MaxLength,
		lookup:    lookup,
		random:    randomUint64,
		logger:    logger,
	}, nil
}

// NewCode returns a code that no stored link uses
func (g *Generator) NewCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		code, err := g.candidate()
		if err != nil {
			return "", err
		}

		if g.lookup == nil {
			return code, nil
		}

		_, err = g.lookup.GetByCode(ctx, code)
		if errors.Is(err, share.ErrShareNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check share code: %w", err)
		}

		g.logger.WithFields(logrus.Fields{
			"attempt": attempt,
		}).Debug("Share code collision, retrying")
	}
	return "", ErrExhausted
}

func (g *Generator) candidate() (string, error) {
	n, err := g.random()
	if err != nil {
		return "", fmt.Errorf("failed to read random number: %w", err)
	}

	code, err := g.encoder.Encode([]uint64{n})
	if err != nil {
		return "", fmt.Errorf("failed to encode share code: %w", err)
	}
	if length := g.length(n); len(code) > length {
		code = code[:length]
	}
	return code, nil
}

// length picks a code length in [minLength, maxLength] from the high byte of n
func (g *Generator) length(n uint64) int {
	span := uint64(g.maxLength - g.minLength + 1)
	return g.minLength + int((n>>56)%span)
}

// shuffleAlphabet deterministically permutes the default alphabet by seed
func shuffleAlphabet(seed string) string {
	var seedInt int64
	for i, c := range seed {
		seedInt += int64(c) * int64(i+1)
	}

	r := mrand.New(mrand.NewSource(seedInt))
	alphabet := []rune(DefaultAlphabet)
	r.Shuffle(len(alphabet), func(i, j int) {
		alphabet[i], alphabet[j] = alphabet[j], alphabet[i]
	})
	return string(alphabet)
}

func randomUint64() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
