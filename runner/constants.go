package runner

// Test execution constants
const (
	// Default go binary name
	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// MaxReasonableConcurrency caps the number of coordinated workers to avoid resource exhaustion
	MaxReasonableConcurrency = 32
)
