package wire

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies a message on the helper socket. Values are shared with
// the helper and never change; there is no protocol versioning.
type Opcode uint32

const (
	// OpcodeOpen asks the helper to open a device node on our behalf.
	OpcodeOpen Opcode = iota
	// OpcodeOpenReply answers an open request. Carries a descriptor in the
	// control data when the result is non-negative.
	OpcodeOpenReply
	// OpcodeActivate is pushed by the helper when our VT becomes active.
	OpcodeActivate
	// OpcodeDeactivate is pushed by the helper when our VT is being
	// switched away. Must be acknowledged with OpcodeDeactivateDone.
	OpcodeDeactivate
	// OpcodeDeactivateDone acknowledges a deactivation.
	OpcodeDeactivateDone
)

// String returns the protocol name of the opcode.
func (o Opcode) String() string {
	switch o {
	case OpcodeOpen:
		return "open"
	case OpcodeOpenReply:
		return "open-reply"
	case OpcodeActivate:
		return "activate"
	case OpcodeDeactivate:
		return "deactivate"
	case OpcodeDeactivateDone:
		return "deactivate-done"
	default:
		return fmt.Sprintf("opcode(%d)", uint32(o))
	}
}

const (
	// EventSize is the length of an opcode-only message.
	EventSize = 4
	// OpenReplySize is the length of an open reply: opcode plus result.
	OpenReplySize = 8
	// openHeaderSize is opcode plus flags on an open request.
	openHeaderSize = 8
)

// OpenReply is the decoded form of an open reply message.
type OpenReply struct {
	ID     Opcode
	Result int32
}

// EncodeOpen serializes an open request: opcode, flags, and the
// NUL-terminated device path.
func EncodeOpen(path string, flags int) []byte {
	buf := make([]byte, openHeaderSize+len(path)+1)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(OpcodeOpen))
	binary.NativeEndian.PutUint32(buf[4:8], uint32(int32(flags)))
	copy(buf[openHeaderSize:], path)
	return buf
}

// ParseOpen decodes an open request. Used by test harnesses standing in
// for the helper end of the socket.
func ParseOpen(buf []byte) (flags int, path string, err error) {
	if len(buf) < openHeaderSize+1 {
		return 0, "", fmt.Errorf("open request too short: %d bytes", len(buf))
	}
	if op := Opcode(binary.NativeEndian.Uint32(buf[0:4])); op != OpcodeOpen {
		return 0, "", fmt.Errorf("not an open request: %s", op)
	}
	flags = int(int32(binary.NativeEndian.Uint32(buf[4:8])))
	raw := buf[openHeaderSize:]
	if raw[len(raw)-1] != 0 {
		return 0, "", fmt.Errorf("open request path is not NUL-terminated")
	}
	return flags, string(raw[:len(raw)-1]), nil
}

// EncodeEvent serializes an opcode-only message.
func EncodeEvent(op Opcode) []byte {
	buf := make([]byte, EventSize)
	binary.NativeEndian.PutUint32(buf, uint32(op))
	return buf
}

// EncodeOpenReply serializes an open reply message.
func EncodeOpenReply(result int32) []byte {
	buf := make([]byte, OpenReplySize)
	binary.NativeEndian.PutUint32(buf[0:4], uint32(OpcodeOpenReply))
	binary.NativeEndian.PutUint32(buf[4:8], uint32(result))
	return buf
}

// ParseOpenReply decodes an open reply. The buffer must be exactly
// OpenReplySize bytes; anything else is a protocol violation.
func ParseOpenReply(buf []byte) (OpenReply, error) {
	if len(buf) != OpenReplySize {
		return OpenReply{}, fmt.Errorf("open reply has %d bytes, want %d", len(buf), OpenReplySize)
	}
	return OpenReply{
		ID:     Opcode(binary.NativeEndian.Uint32(buf[0:4])),
		Result: int32(binary.NativeEndian.Uint32(buf[4:8])),
	}, nil
}

// PeekOpcode reads the leading opcode of a message, reporting false when
// the buffer is too short to carry one.
func PeekOpcode(buf []byte) (Opcode, bool) {
	if len(buf) < EventSize {
		return 0, false
	}
	return Opcode(binary.NativeEndian.Uint32(buf[0:4])), true
}
