package checkpoint

import "testing"

func TestClampHistoryLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{500, 500},
		{1000, 1000},
		{1001, 1000},
		{1_000_000, 1000},
	}
	for _, tc := range cases {
		if got := ClampHistoryLimit(tc.in); got != tc.want {
			t.Errorf("ClampHistoryLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
