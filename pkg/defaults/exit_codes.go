package defaults

// Exit codes for the CLI.
const (
	ExitSuccess     = 0   // Scan completed
	ExitError       = 1   // Scan failed, bad input, or consent required
	ExitAborted     = 2   // Target reachable but not WordPress
	ExitInterrupted = 130 // SIGINT/SIGTERM
)
