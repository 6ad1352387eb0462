package affiliates

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlugChecker struct {
	taken map[string]bool
}

func (f *fakeSlugChecker) SlugTaken(_ context.Context, slug string) (bool, error) {
	return f.taken[slug], nil
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane-doe"},
		{"  --Crazy!!Name##  ", "crazy-name"},
		{"UPPER case", "upper-case"},
		{"a", "axx"},
		{"émile zola", "mile-zola"},
		{strings.Repeat("long-name-", 10), "long-name-long-name-long-name"},
	}
	for _, tc := range cases {
		got := Slugify(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.GreaterOrEqual(t, len(got), slugMinLen)
		assert.LessOrEqual(t, len(got), slugMaxLen)
	}
}

func TestAllocateSlugNoCollision(t *testing.T) {
	checker := &fakeSlugChecker{taken: map[string]bool{}}
	slug, err := allocateSlug(context.Background(), checker, "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "jane-doe", slug)
}

func TestAllocateSlugNumericSuffixes(t *testing.T) {
	checker := &fakeSlugChecker{taken: map[string]bool{
		"jane-doe":   true,
		"jane-doe-2": true,
	}}
	slug, err := allocateSlug(context.Background(), checker, "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "jane-doe-3", slug)
}

func TestAllocateSlugFallsBackToRandomSuffix(t *testing.T) {
	// every numeric candidate is taken, forcing the random fallback
	taken := map[string]bool{"jane-doe": true}
	for i := 2; i <= maxSlugAttempts+1; i++ {
		taken[suffixedSlug("jane-doe", "-"+strconv.Itoa(i))] = true
	}
	checker := &fakeSlugChecker{taken: taken}

	slug, err := allocateSlug(context.Background(), checker, "Jane Doe")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(slug, "jane-doe-"))
	assert.Len(t, slug, len("jane-doe-")+randomSuffixLen)
}

func TestGenerateReferralCodeAlphabet(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateReferralCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, referralAlphabet, string(r))
		}
	}
}
