package affiliates

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

const (
	slugMinLen = 3
	slugMaxLen = 30

	// maxSlugAttempts bounds the numeric-suffix collision walk. Past it a
	// random suffix is appended instead of retrying forever.
	maxSlugAttempts = 64

	randomSuffixLen = 6

	// referralAlphabet excludes ambiguous characters (0/O, 1/I/L).
	referralAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeLen   = 6
	slugSuffixLetters = "abcdefghjkmnpqrstuvwxyz23456789"
)

type slugChecker interface {
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// Slugify normalizes a display name into a URL-safe slug: lowercase,
// non-alphanumeric runs collapsed to single hyphens, clamped to 3-30 chars.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > slugMaxLen {
		slug = strings.Trim(slug[:slugMaxLen], "-")
	}
	for len(slug) < slugMinLen {
		slug += "x"
	}
	return slug
}

// allocateSlug finds a free slug derived from name. Collisions walk numeric
// suffixes -2, -3, ... up to maxSlugAttempts, then fall back to one random
// suffix.
func allocateSlug(ctx context.Context, checker slugChecker, name string) (string, error) {
	base := Slugify(name)

	candidate := base
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		taken, err := checker.SlugTaken(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check slug availability")
		}
		if !taken {
			return candidate, nil
		}
		candidate = suffixedSlug(base, fmt.Sprintf("-%d", attempt+1))
	}

	suffix, err := randomString(slugSuffixLetters, randomSuffixLen)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate slug suffix")
	}
	candidate = suffixedSlug(base, "-"+suffix)
	taken, err := checker.SlugTaken(ctx, candidate)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check slug availability")
	}
	if taken {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique slug")
	}
	return candidate, nil
}

// suffixedSlug appends suffix, trimming the base so the result stays within
// the length cap.
func suffixedSlug(base, suffix string) string {
	maxBase := slugMaxLen - len(suffix)
	if len(base) > maxBase {
		base = strings.Trim(base[:maxBase], "-")
	}
	return base + suffix
}

// generateReferralCode produces a short code from the unambiguous alphabet.
func generateReferralCode() (string, error) {
	return randomString(referralAlphabet, referralCodeLen)
}

func randomString(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
