package job

// Job Record lifecycle codes. Only StatusCreated and StatusTerminal carry
// meaning for the orchestrator; any other value is a worker-defined checkpoint
// that is stored as-is.
const (
	StatusCreated  = 0
	StatusRunning  = 1
	StatusTerminal = 10
)

// IsTerminal reports whether status ends the work chain
func IsTerminal(status int) bool {
	return status == StatusTerminal
}
