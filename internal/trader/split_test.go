package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitOrderVolume(t *testing.T) {
	tests := []struct {
		name   string
		volume int64
		want   []int64
	}{
		{"below limit", 80000, []int64{80000}},
		{"exactly limit", 100000, []int64{100000}},
		{"two and a half", 250000, []int64{100000, 100000, 50000}},
		{"just above limit", 100100, []int64{100000, 100}},
		{"exact multiple", 300000, []int64{100000, 100000, 100000}},
		{"tiny", 100, []int64{100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitOrderVolume(tt.volume, 100000)
			assert.Equal(t, tt.want, got)

			var sum int64
			for i, part := range got {
				sum += part
				assert.LessOrEqual(t, part, int64(100000))
				if i < len(got)-1 {
					assert.Equal(t, int64(100000), part, "only the last part may be short")
				}
			}
			assert.Equal(t, tt.volume, sum, "parts must sum to the input")
		})
	}
}
