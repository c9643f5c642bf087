package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimevalFromSecondsSplit(t *testing.T) {
	cases := []float64{0, 0.25, 0.999999, 1, 1.5, 2.000001, 10.75, 86400.123456}
	for _, timeout := range cases {
		tv := TimevalFromSeconds(timeout)
		require.NotNil(t, tv, "timeout %v", timeout)
		sec := math.Floor(timeout)
		assert.Equal(t, int64(sec), tv.Sec, "timeout %v", timeout)
		assert.Equal(t, int64(math.Round((timeout-sec)*1e6)), tv.Usec, "timeout %v", timeout)
	}
}

func TestTimevalFromSecondsNegative(t *testing.T) {
	assert.Nil(t, TimevalFromSeconds(-1))
	assert.Nil(t, TimevalFromSeconds(-0.001))
	assert.Nil(t, TimevalFromSeconds(math.Inf(-1)))
}

func TestTimevalDuration(t *testing.T) {
	tv := Timeval{Sec: 2, Usec: 500_000}
	assert.Equal(t, int64(2_500_000), tv.Duration().Microseconds())
}
