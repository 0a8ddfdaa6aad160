package pagination

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	p, err := Parse("", "")
	require.NoError(t, err)
	assert.Equal(t, Page{Number: 1, Limit: DefaultLimit}, p)
	assert.Equal(t, 0, p.Offset())
}

func TestParse_ClampsLimit(t *testing.T) {
	p, err := Parse("3", "1000")
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, p.Limit)
	assert.Equal(t, 200, p.Offset())
}

func TestParse_Invalid(t *testing.T) {
	for _, tc := range []struct{ page, limit string }{
		{"0", ""},
		{"-1", ""},
		{"abc", ""},
		{"", "0"},
		{"", "ten"},
		{"922337203685477580", "100"},
		{"9223372036854775807", ""},
	} {
		_, err := Parse(tc.page, tc.limit)
		assert.Error(t, err, "page=%q limit=%q", tc.page, tc.limit)
	}
}

func TestTotalPages(t *testing.T) {
	p := Page{Number: 1, Limit: 10}
	assert.Equal(t, 0, p.TotalPages(0))
	assert.Equal(t, 1, p.TotalPages(10))
	assert.Equal(t, 2, p.TotalPages(11))
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{3, 4}, Slice(items, Page{Number: 2, Limit: 2}))
	assert.Equal(t, []int{5}, Slice(items, Page{Number: 3, Limit: 2}))
	assert.Empty(t, Slice(items, Page{Number: 4, Limit: 2}))
}

func TestParse_LargestValidPage(t *testing.T) {
	page := strconv.Itoa(math.MaxInt/MaxLimit + 1)
	p, err := Parse(page, strconv.Itoa(MaxLimit))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Offset(), 0)
	assert.Empty(t, Slice([]int{1, 2, 3}, p))
}

func TestSlice_NegativeOffset(t *testing.T) {
	assert.Empty(t, Slice([]int{1, 2, 3}, Page{Number: -4, Limit: 10}))
}
