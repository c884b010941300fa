package domain

import "github.com/google/uuid"

// Stream tags a chunk of process output.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// OutputChunk is a piece of process output in production order.
type OutputChunk struct {
	Stream Stream
	Data   []byte
}

// ExecutionRequest is passed to an executor.
type ExecutionRequest struct {
	JobID    uuid.UUID
	Language Language
	Code     string
	Filename string
}

// ExecutionResult is produced exactly once per job by the executor.
type ExecutionResult struct {
	Success       bool    `json:"success"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
}

// FailureResult is the result recorded when execution could not run to completion.
func FailureResult(message string) *ExecutionResult {
	return &ExecutionResult{
		Success:       false,
		Stdout:        "",
		Stderr:        message,
		ExitCode:      -1,
		ExecutionTime: 0,
	}
}
