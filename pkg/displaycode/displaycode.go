package displaycode

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Codes look like R250831-4KXV: a one-letter kind prefix, the local date, and
// a random suffix. The suffix alphabet drops 0/O/1/I to keep codes readable
// over the phone.
const (
	suffixLen      = 4
	suffixAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	maxAttempts    = 5
)

// ExistsFunc reports whether a candidate code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator builds display codes for one order family.
type Generator struct {
	prefix string
	now    func() time.Time
}

// New returns a generator for the given family prefix ("R", "D", "C").
func New(prefix string, now func() time.Time) (*Generator, error) {
	if prefix == "" {
		return nil, fmt.Errorf("display code prefix required")
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{prefix: prefix, now: now}, nil
}

// Generate produces a fresh, collision-checked code.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	if exists == nil {
		return "", fmt.Errorf("exists check required")
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := g.candidate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "display code collision check")
		}
		if !taken {
			return code, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not generate a unique display code")
}

func (g *Generator) candidate() (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	suffix := make([]byte, suffixLen)
	for i, b := range buf {
		suffix[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s%s-%s", g.prefix, g.now().Format("060102"), suffix), nil
}
