package main

// Operational limits, named here instead of being scattered across source
// files. Wire-visible values (handle/room lengths, file size) are part of the
// client protocol and must not change without a protocol bump.
const (
	// MaxConnections is the hard ceiling on simultaneous client
	// connections tracked by the registry.
	MaxConnections = 256

	// MaxRooms is the hard ceiling on simultaneously existing rooms.
	MaxRooms = 256

	// RoomCapacity is the maximum number of members in a single room.
	RoomCapacity = 15

	// UploadQueueCapacity bounds the number of in-flight file relays.
	// Deliberately its own constant: the value matches RoomCapacity by
	// coincidence, not by coupling.
	UploadQueueCapacity = 15

	// NumUploadWorkers is the fixed size of the file relay worker pool.
	NumUploadWorkers = 5

	// MaxHandleLen is the maximum handle length in bytes.
	MaxHandleLen = 16

	// MaxRoomNameLen is the maximum room name length in bytes.
	MaxRoomNameLen = 32

	// MaxFilenameLen is the maximum stored basename length for a relayed
	// file.
	MaxFilenameLen = 255

	// MaxFileSize is the maximum accepted file payload (3 MiB).
	MaxFileSize = 3 * 1024 * 1024

	// MaxLineLen bounds a single protocol line. File payloads are raw
	// bytes and are exempt.
	MaxLineLen = 4096

	// NotifyBufFrames is the per-connection notification channel depth.
	// Past this, publishes to a stalled client time out and drop.
	NotifyBufFrames = 64
)

// LogDirectory is the default directory for per-run event logs, relative to
// the working directory.
const LogDirectory = "logs"
