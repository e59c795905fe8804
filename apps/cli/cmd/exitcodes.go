package cmd

// Exit codes for the tickfetch CLI
const (
	// ExitSuccess indicates the probe completed and passed
	ExitSuccess = 0

	// ExitRequestFailure indicates a non-2xx response, a missing extract
	// field, or a schema violation
	ExitRequestFailure = 1

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the request failed at the network level
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
