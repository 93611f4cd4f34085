// Package exitcodes defines the exit code contract of testmux.
//
// The process exit code is the aggregate failure count, the conventional
// "number of failing tests" signal: 0 means every test passed. Counts above
// MaxFailures saturate so the configuration-error code stays unambiguous.
//
//   - 0: all tests passed
//   - 1..254: number of failing tests (saturated at 254)
//   - 255: fatal configuration or runtime error, no results produced
package exitcodes

const (
	Success   = 0
	ConfigErr = 255

	// MaxFailures is the largest failure count representable in the exit
	// status; larger counts are reported as MaxFailures.
	MaxFailures = 254
)

// FromFailures maps a failure count to the process exit code.
func FromFailures(failures int) int {
	if failures <= 0 {
		return Success
	}
	if failures > MaxFailures {
		return MaxFailures
	}
	return failures
}
