package main

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Reply lines sent to clients. These are wire contract: clients match on the
// leading tag and, for some of them, on the full text.
const (
	replyUsernameAccepted = "[OK] Username accepted.\n"
	replyBadUsername      = "[ERROR] Username must be 1–16 alphanumeric characters.\n"
	replyUsernameTaken    = "[ERROR] Username already taken. Choose another.\n"
	replyServerFull       = "[ERROR] Server is full. Try again later.\n"

	replyExit           = "[INFO] Server is shutting down your connection.\n"
	replyWhisperUsage   = "[ERROR] Usage: /whisper <user> <message>\n"
	replyJoinUsage      = "[ERROR] Usage: /join <room>\n"
	replyBadRoomName    = "[ERROR] Room name must be 1–32 alphanumeric characters.\n"
	replyRoomSlotsFull  = "[WARN] Room slots are full. Room is not created. Try again later.\n"
	replyRoomFull       = "[WARN] Room is full\n"
	replyBroadcastUsage = "[ERROR] Usage: /broadcast <msg>\n"
	replyNotInRoom      = "[ERROR] Join a room first\n"
	replySendfileUsage  = "[ERROR] Usage: /sendfile <filename> <user> <size>\n"
	replyBadFileSize    = "[ERROR] File size must be between 1 byte and 3MB.\n"
	replyShortFileData  = "[ERROR] Failed to receive full file data.\n"
	replyUnknownCommand = "[ERROR] Unknown command.\n"

	replyGoodbye = "[SERVER] shutting down. Goodbye.\n"
)

// validHandle reports whether s is a well-formed handle: 1 to MaxHandleLen
// bytes, all ASCII alphanumeric.
func validHandle(s string) bool {
	return validName(s, MaxHandleLen)
}

// validRoomName reports whether s is a well-formed room name: 1 to
// MaxRoomNameLen bytes, all ASCII alphanumeric.
func validRoomName(s string) bool {
	return validName(s, MaxRoomNameLen)
}

func validName(s string, maxLen int) bool {
	if len(s) == 0 || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z') {
			return false
		}
	}
	return true
}

// formatMessage builds the "[<from>] <msg>\n" line used for whispers and room
// broadcasts.
func formatMessage(from, msg string) []byte {
	return []byte(fmt.Sprintf("[%s] %s\n", from, msg))
}

// formatFileHeader builds the "[FILE <basename> <size> <sender>]\n" line that
// precedes relayed file bytes.
func formatFileHeader(name string, size int, sender string) []byte {
	return []byte(fmt.Sprintf("[FILE %s %d %s]\n", name, size, sender))
}

// cleanFilename reduces a client-supplied filename to its basename and caps
// its length. The server never touches the filesystem with it; this only
// bounds what gets echoed into headers and logs.
func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = "file"
	}
	if len(name) > MaxFilenameLen {
		name = name[:MaxFilenameLen]
	}
	return name
}

// parseFileSize parses the <size> argument of /sendfile and enforces the
// (0, MaxFileSize] bound. Any parse failure is reported the same way as an
// out-of-range size, matching how strtoul-based parsing behaved.
func parseFileSize(s string) (int, bool) {
	n, err := strconv.ParseUint(s, 10, 63)
	if err != nil || n == 0 || n > MaxFileSize {
		return 0, false
	}
	return int(n), true
}
