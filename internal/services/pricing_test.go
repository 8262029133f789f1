package services

import "testing"

func TestRequiredCredits(t *testing.T) {
	cases := []struct {
		name       string
		numOutputs int
		cost       float64
		want       int
	}{
		{"single whole cost", 1, 5, 5},
		{"multiple outputs", 4, 2.5, 10},
		{"fractional rounds up", 1, 0.5, 1},
		{"fractional product rounds up", 3, 1.4, 5},
		{"zero outputs", 0, 5, 0},
		{"free model", 2, 0, 0},
		{"negative cost clamps to zero", 1, -3, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequiredCredits(tc.numOutputs, tc.cost); got != tc.want {
				t.Errorf("RequiredCredits(%d, %v): got %d, want %d", tc.numOutputs, tc.cost, got, tc.want)
			}
		})
	}
}
