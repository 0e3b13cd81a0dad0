package tui

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestTruncateByRunes(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "lobby", 10, "lobby"},
		{"exact", "lobby", 5, "lobby"},
		{"ascii cut", "general discussion", 8, "general…"},
		{"width one", "lobby", 1, "l"},
		{"zero width untouched", "lobby", 0, "lobby"},
		{"multibyte fits", "café", 4, "café"},
		{"multibyte cut", "übermäßig lang", 5, "über…"},
		{"emoji cut", "🦀🦀🦀🦀", 3, "🦀🦀…"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.width)
			require.Equal(t, tc.want, got)
			require.True(t, utf8.ValidString(got), "truncation must not split a rune")
		})
	}
}

func TestTruncateLongStatusStaysValid(t *testing.T) {
	status := strings.Repeat("ø", 200)
	got := truncate(status, 40)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, 40, utf8.RuneCountInString(got))
	require.True(t, strings.HasSuffix(got, "…"))
}
