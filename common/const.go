package common

// RPC method names served on /jsonrpc/ws.
const (
	MethodGetVersion  = "system.getVersion"
	MethodTimerStart  = "timer.start"
	MethodTimerPause  = "timer.pause"
	MethodTimerResume = "timer.resume"
	MethodTimerReset  = "timer.reset"
	MethodTimerSelect = "timer.select"
	MethodTimerStatus = "timer.status"
	// MethodTimerRefresh re-renders from the deadline after the display was
	// hidden.
	MethodTimerRefresh = "timer.refresh"
	MethodAudioUnlock  = "audio.unlock"
	MethodAudioTest    = "audio.testTone"
)

// NotificationType names a server push.
type NotificationType string

const (
	NotifyTick     NotificationType = "timer.tick"
	NotifyComplete NotificationType = "timer.complete"
)

// RPCPath is the WebSocket endpoint.
const RPCPath = "/jsonrpc/ws"
