package main

// Exit codes
const (
	ExitSuccess       = 0 // Success
	ExitError         = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError   = 2 // Configuration error (missing repository, invalid config) / index not found
	ExitDataError     = 3 // Data error (malformed download, empty store)
	ExitBackendError  = 4 // Embedding, vector store or inference backend unavailable
	ExitModelNotFound = 5 // Embedding model not found
	ExitIndexStale    = 6 // Semantic index is stale
	ExitNotFound      = 7 // Paper or conference data not found
	ExitInvalidInput  = 8 // Rejected input (empty question, bad filter)
)
