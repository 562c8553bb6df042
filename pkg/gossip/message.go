package gossip

// Wire protocol for replicated cache mutations.
// A message is encoded with the protobuf wire format (no generated code):
//
//	1: command (varint)
//	2: key     (bytes)
//	3: value   (bytes)
//
// There is no schema version field; every node in a cluster must agree on
// this layout.

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrDecode is returned (wrapped) for payloads that are not a valid message.
var ErrDecode = errors.New("gossip: malformed message")

// Command says what a Message asks the receiver to do.
type Command uint8

const (
	CmdPing   Command = iota // liveness only, no cache effect
	CmdInsert                // upsert Key=Value
	CmdRemove                // delete Key
)

func (c Command) String() string {
	switch c {
	case CmdPing:
		return "ping"
	case CmdInsert:
		return "insert"
	case CmdRemove:
		return "remove"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

func (c Command) valid() bool {
	return c <= CmdRemove
}

// Message is the unit of replication. Value is empty for Ping and Remove.
type Message struct {
	Command Command
	Key     string
	Value   string
}

// Ping builds a liveness message with empty key and value.
func Ping() Message { return Message{Command: CmdPing} }

// Insert builds a message that upserts key on every receiver.
func Insert(key, value string) Message {
	return Message{Command: CmdInsert, Key: key, Value: value}
}

// Remove builds a message that deletes key on every receiver.
func Remove(key string) Message {
	return Message{Command: CmdRemove, Key: key}
}

const (
	fieldCommand protowire.Number = 1
	fieldKey     protowire.Number = 2
	fieldValue   protowire.Number = 3
)

// Encode returns the wire form of m. All three fields are always written,
// in field order, so the output is deterministic.
func Encode(m Message) []byte {
	size := protowire.SizeTag(fieldCommand) + protowire.SizeVarint(uint64(m.Command)) +
		protowire.SizeTag(fieldKey) + protowire.SizeBytes(len(m.Key)) +
		protowire.SizeTag(fieldValue) + protowire.SizeBytes(len(m.Value))

	b := make([]byte, 0, size)
	b = protowire.AppendTag(b, fieldCommand, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Command))
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
	b = protowire.AppendString(b, m.Value)
	return b
}

// Decode parses a payload produced by Encode. Any error wraps ErrDecode.
func Decode(b []byte) (Message, error) {
	var (
		m          Message
		seenCmd    bool
		seenFields [4]bool
	)
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: tag: %v", ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]

		if num < fieldCommand || num > fieldValue {
			return Message{}, fmt.Errorf("%w: unknown field %d", ErrDecode, num)
		}
		if seenFields[num] {
			return Message{}, fmt.Errorf("%w: duplicate field %d", ErrDecode, num)
		}
		seenFields[num] = true

		switch num {
		case fieldCommand:
			if typ != protowire.VarintType {
				return Message{}, fmt.Errorf("%w: command has wire type %d", ErrDecode, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: command: %v", ErrDecode, protowire.ParseError(n))
			}
			if v > uint64(CmdRemove) {
				return Message{}, fmt.Errorf("%w: unknown command %d", ErrDecode, v)
			}
			m.Command = Command(v)
			seenCmd = true
			b = b[n:]
		case fieldKey, fieldValue:
			if typ != protowire.BytesType {
				return Message{}, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrDecode, num, protowire.ParseError(n))
			}
			if num == fieldKey {
				m.Key = v
			} else {
				m.Value = v
			}
			b = b[n:]
		}
	}

	if !seenCmd || !m.Command.valid() {
		return Message{}, fmt.Errorf("%w: missing command", ErrDecode)
	}
	return m, nil
}
