// Package exitcodes defines the exit codes of op-rerun.
package exitcodes

// Exit codes returned by op-rerun:
//
// * Success (0): every check passed, possibly after group reruns
// * CheckFailure (1): at least one check still failed after its last attempt
// * RuntimeErr (2): the run itself broke, e.g. an unreadable plan or a panic
const (
	Success      = 0
	CheckFailure = 1
	RuntimeErr   = 2
)
