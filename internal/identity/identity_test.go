package identity

import (
	"testing"

	"github.com/muyun12/iceproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, err := New("", "cat")
	require.Error(t, err)

	var usageErr *iceproxy.UsageError
	require.ErrorAs(t, err, &usageErr)
	assert.Equal(t, iceproxy.IllegalIdentity, usageErr.Kind)
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Identity{
		{Name: "account"},
		{Name: "account", Category: "bank"},
		{Name: "weird/name", Category: "cat\\egory"},
	}

	for _, want := range cases {
		got, err := Parse(want.String())
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "round trip %+v -> %q -> %+v", want, want.String(), got)
	}
}

func TestEqualAndLess(t *testing.T) {
	t.Parallel()

	a, _ := New("alpha", "cat")
	b, _ := New("alpha", "cat")
	c, _ := New("beta", "cat")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.Less(c))
	assert.False(t, c.Less(a))
}
