package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"a.png":              "a.png",
		"/images/a.png":      "images/a.png",
		"../../etc/passwd":   "etc/passwd",
		"images\\win\\a.png": "images/win/a.png",
		"a/./b/../c.png":     "a/c.png",
	}
	for in, want := range cases {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "/", "..", "."} {
		_, err := CleanKey(bad)
		assert.Error(t, err, bad)
	}
}
