// Package ssh ships generated firmware sources to a remote build host.
//
// The client connects directly or through a jump host, uploads a build
// tree over SFTP (skipping files whose content is already present) and
// can run the build command remotely.
package ssh

import (
	"context"
	"time"
)

// Transport is the remote build host contract used by the upload command.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// HealthCheck verifies the connection is still alive and responsive.
	HealthCheck(ctx context.Context) error

	// ExecuteCommand runs a command on the remote host.
	ExecuteCommand(ctx context.Context, cmd string) (*ExecResult, error)

	// UploadFile uploads a single file to the remote host via SFTP.
	UploadFile(ctx context.Context, localPath string, remotePath string, mode uint32) (*FileTransferResult, error)

	// UploadTree uploads the files under localDir that match opts.
	UploadTree(ctx context.Context, localDir string, remoteDir string, opts UploadOptions) (*UploadResult, error)

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

var _ Transport = (*SSHClient)(nil)

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	Host         string
	Port         int
	User         string
	ConnectedAt  time.Time
	LastActivity time.Time
	ViaProxy     bool
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Stdout is the standard output from the command
	Stdout string

	// Stderr is the standard error output from the command
	Stderr string

	// ExitCode is the command's exit code
	ExitCode int

	// StartedAt is when the command started executing
	StartedAt time.Time

	// Duration is the total execution time
	Duration time.Duration
}

// FileTransferResult represents the result of a file transfer operation.
type FileTransferResult struct {
	// BytesTransferred is the number of bytes transferred
	BytesTransferred int64

	// Skipped is set when the remote file already had the same content
	Skipped bool

	// Checksum is the SHA256 checksum of the local file
	Checksum string

	// Duration is the time taken for the transfer
	Duration time.Duration
}

// UploadOptions selects which files of a tree are uploaded.
type UploadOptions struct {
	// Include holds doublestar patterns relative to the local root; empty
	// means every file.
	Include []string

	// Exclude holds doublestar patterns that win over Include.
	Exclude []string

	// Force uploads files even when the remote checksum matches.
	Force bool

	// DeleteExtraneous removes remote files under remoteDir that are not
	// part of the upload set.
	DeleteExtraneous bool
}

// UploadResult summarizes a tree upload.
type UploadResult struct {
	Uploaded         []string
	Skipped          []string
	Deleted          []string
	BytesTransferred int64
	Duration         time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
