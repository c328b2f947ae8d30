// Package common provides the names and wire types shared by the meditate
// server and its clients.
package common

// Environment variable names for configuration.
const (
	// CacheDirEnv overrides the asset cache location.
	CacheDirEnv = "MEDITATE_CACHE_DIR"

	// PortEnv is the environment variable for the web server port.
	PortEnv = "MEDITATE_PORT"

	// OriginEnv points the asset cache at a remote origin instead of the
	// embedded web shell.
	OriginEnv = "MEDITATE_ORIGIN"

	// RPCSecretEnv holds the Bearer token required by /jsonrpc/ws.
	RPCSecretEnv = "MEDITATE_RPC_SECRET"

	// StoreEnv selects the cache backend, "fs" or "sqlite".
	StoreEnv = "MEDITATE_STORE"

	// FrameIntervalEnv overrides the tick interval (a Go duration string).
	FrameIntervalEnv = "MEDITATE_FRAME_INTERVAL"

	// RemoteAddrEnv is the server address used by "meditate remote".
	RemoteAddrEnv = "MEDITATE_REMOTE_ADDR"

	// LogFileEnv names a file that "meditate serve" also logs to.
	LogFileEnv = "MEDITATE_LOG_FILE"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "MEDITATE_DEBUG"
)
