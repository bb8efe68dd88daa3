// Package common provides shared types and constants used across the
// metronom client-server communication layer.
package common

// Environment variable names for configuration.
const (
	// SocketPathEnv is the environment variable for custom socket path.
	SocketPathEnv = "METRONOM_SOCKET_PATH"

	// PipeNameEnv is the environment variable for a custom Windows pipe name.
	PipeNameEnv = "METRONOM_PIPE_NAME"

	// TCPPortEnv is the environment variable for custom TCP port.
	TCPPortEnv = "METRONOM_TCP_PORT"

	// ForceTCPEnv is the environment variable to force TCP connections.
	ForceTCPEnv = "METRONOM_FORCE_TCP"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "METRONOM_DEBUG"

	// ReplyHostEnv overrides the reply server host of network operations.
	ReplyHostEnv = "METRONOM_REPLY_HOST"

	// ProxyEnv sets the default proxy of network, web and ftp operations.
	ProxyEnv = "METRONOM_PROXY"
)
