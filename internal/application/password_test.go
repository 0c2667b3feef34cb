package application_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/testfixtures"
)

func TestPasswordPolicy_HashAndCheck(t *testing.T) {
	t.Parallel()

	policy := testfixtures.FastPasswords
	encoded, err := policy.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"), encoded)

	stale, err := policy.Check(encoded, "correct horse")
	require.NoError(t, err)
	assert.False(t, stale)

	_, err = policy.Check(encoded, "battery staple")
	assert.ErrorIs(t, err, application.ErrInvalidCredentials)

	again, err := policy.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "every hash gets its own salt")

	t.Run("flags hashes made under another cost", func(t *testing.T) {
		stronger := policy
		stronger.Iterations = 2
		stale, err := stronger.Check(encoded, "correct horse")
		require.NoError(t, err)
		assert.True(t, stale)
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		for _, bad := range []string{
			"",
			"plain-text",
			"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
			"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5",
			"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$",
		} {
			_, err := policy.Check(bad, "correct horse")
			assert.ErrorIs(t, err, application.ErrMalformedPasswordHash, bad)
		}
	})
}

func TestNewPasswordPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, application.DefaultPasswordPolicy, application.NewPasswordPolicy(0, 0, 0))

	policy := application.NewPasswordPolicy(19456, 2, 1)
	assert.Equal(t, uint32(19456), policy.MemoryKiB)
	assert.Equal(t, uint32(2), policy.Iterations)
	assert.Equal(t, uint8(1), policy.Parallelism)
	assert.Equal(t, application.DefaultPasswordPolicy.KeyBytes, policy.KeyBytes)

	assert.Equal(t, application.DefaultPasswordPolicy.Parallelism, application.NewPasswordPolicy(0, 0, 512).Parallelism)
}

func TestPasswordPolicy_OnlyTheHashedPasswordMatches(t *testing.T) {
	t.Parallel()

	policy := testfixtures.FastPasswords
	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringN(1, 24, -1).Draw(t, "password")
		other := rapid.StringN(1, 24, -1).Filter(func(s string) bool { return s != password }).Draw(t, "other")

		encoded, err := policy.Hash(password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if _, err := policy.Check(encoded, password); err != nil {
			t.Fatalf("own password rejected: %v", err)
		}
		if _, err := policy.Check(encoded, other); err == nil {
			t.Fatalf("%q matched the hash of %q", other, password)
		}
	})
}
