package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motion_trainer/internal/motion"
)

func TestParseSampleLine(t *testing.T) {
	s, err := parseSampleLine("0.12,-0.5,1.01\r\n")
	require.NoError(t, err)
	assert.Equal(t, motion.Sample{X: 0.12, Y: -0.5, Z: 1.01}, s)
}

func TestParseSampleLineWithSpaces(t *testing.T) {
	s, err := parseSampleLine(" 1.0 , 2.0 , 3.0 ")
	require.NoError(t, err)
	assert.Equal(t, motion.Sample{X: 1, Y: 2, Z: 3}, s)
}

func TestParseSampleLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		"",
		"\r\n",
		"1.0,2.0",
		"1.0,2.0,3.0,4.0",
		"a,b,c",
		"1.0,,3.0",
	} {
		_, err := parseSampleLine(line)
		assert.Error(t, err, "line %q", line)
	}
}

func TestMockSourceStaysQuietBetweenBursts(t *testing.T) {
	src := NewMockSource()
	s, err := src.Next()
	require.NoError(t, err)

	// First samples fall inside the burst window; magnitude is bounded
	// either way.
	assert.Less(t, s.Magnitude(), 1.0)
	require.NoError(t, src.Close())
}
