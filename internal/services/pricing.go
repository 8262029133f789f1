package services

import "math"

// RequiredCredits is the charge for numOutputs outputs at costPerRequest
// credits each. Fractional totals round up: the ledger holds integers and
// under-charging is not an option.
func RequiredCredits(numOutputs int, costPerRequest float64) int {
	if numOutputs <= 0 || costPerRequest <= 0 {
		return 0
	}
	return int(math.Ceil(float64(numOutputs) * costPerRequest))
}
