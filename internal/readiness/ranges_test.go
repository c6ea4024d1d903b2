package readiness

import (
	"testing"

	"github.com/rileyhilliard/dozer/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusRanges(t *testing.T) {
	ranges, err := ParseStatusRanges("200-299,404")
	require.NoError(t, err)
	assert.Equal(t, StatusRanges{{200, 299}, {404, 404}}, ranges)

	for _, code := range []int{200, 250, 299, 404} {
		assert.True(t, ranges.Contains(code), "expected %d to match", code)
	}
	for _, code := range []int{199, 300, 403, 500} {
		assert.False(t, ranges.Contains(code), "expected %d not to match", code)
	}
}

func TestParseStatusRanges_Whitespace(t *testing.T) {
	ranges, err := ParseStatusRanges(" 200 - 204 , 301 ,")
	require.NoError(t, err)
	assert.Equal(t, "200-204,301", ranges.String())
}

func TestParseStatusRanges_Invalid(t *testing.T) {
	tests := []string{"", ",", "abc", "200-", "299-200", "99", "600", "200-700"}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseStatusRanges(input)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
		})
	}
}
