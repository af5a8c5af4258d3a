package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	require.Equal(t, "", NormalizeText(""))
	require.Equal(t, "a b c", NormalizeText("  a\n\n b\t\tc  "))
	require.Equal(t, "drop incoming", NormalizeText("drop\x00 incoming\x07"))
	require.Equal(t, "price 120", NormalizeText("price € 120"))
}

func TestNormalizeTextStable(t *testing.T) {
	in := "SOLD  OUT \x00 again\n"
	require.Equal(t, NormalizeText(in), NormalizeText(NormalizeText(in)))
}
