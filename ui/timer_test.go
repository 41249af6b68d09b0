package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimer(t *testing.T) {
	valid := map[string]time.Duration{
		"30":    30 * time.Minute,
		" 45 ":  45 * time.Minute,
		"1.5":   90 * time.Second,
		"1h30m": 90 * time.Minute,
		"0":     0,
	}
	for in, want := range valid {
		d, err := parseTimer(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, d, in)
	}

	for _, in := range []string{"", "soon", "-5", "-1m"} {
		_, err := parseTimer(in)
		assert.ErrorIs(t, err, errBadTimer, in)
	}
}
