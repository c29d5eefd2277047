package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	require.Equal(t, "the warranty period is 24 months.", NormalizeText("  The   Warranty\nperiod\tis 24 MONTHS.\r\n"))
	require.Equal(t, "", NormalizeText(" \n\t "))
}

func TestContentHashIgnoresCaseAndWhitespace(t *testing.T) {
	a := ContentHash("The warranty period is 24 months.")
	b := ContentHash("the  warranty\nperiod is 24 months.  ")
	c := ContentHash("The warranty period is 36 months.")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
}
