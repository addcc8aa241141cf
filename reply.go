package redisub

import (
	"fmt"
	"strings"
)

// ReplyKind identifies the variant held by a Reply.
type ReplyKind int

const (
	// ReplyString covers both RESP simple strings and bulk strings.
	ReplyString ReplyKind = iota
	ReplyError
	ReplyInteger
	ReplyArray
	ReplyNil
)

// Reply is a parsed server reply delivered to subscriber callbacks.
//
// It is a tagged variant: exactly one of the AsString, AsInteger or
// AsArray accessors carries meaning, selected by Kind. Error replies
// carry their message through AsString.
type Reply struct {
	kind  ReplyKind
	str   string
	n     int64
	elems []Reply
}

// StringReply builds a string reply. Simple and bulk strings are not
// distinguished on the callback surface.
func StringReply(s string) Reply {
	return Reply{kind: ReplyString, str: s}
}

// ErrorReply builds an error reply carrying the given message.
func ErrorReply(msg string) Reply {
	return Reply{kind: ReplyError, str: msg}
}

// IntegerReply builds an integer reply.
func IntegerReply(n int64) Reply {
	return Reply{kind: ReplyInteger, n: n}
}

// ArrayReply builds an array reply from the given elements.
func ArrayReply(elems ...Reply) Reply {
	return Reply{kind: ReplyArray, elems: elems}
}

// NilReply builds a null reply (RESP null bulk string or null array).
func NilReply() Reply {
	return Reply{kind: ReplyNil}
}

// Kind returns the variant tag.
func (r Reply) Kind() ReplyKind { return r.kind }

func (r Reply) IsString() bool  { return r.kind == ReplyString }
func (r Reply) IsError() bool   { return r.kind == ReplyError }
func (r Reply) IsInteger() bool { return r.kind == ReplyInteger }
func (r Reply) IsArray() bool   { return r.kind == ReplyArray }
func (r Reply) IsNil() bool     { return r.kind == ReplyNil }

// AsString returns the string payload. For error replies this is the
// error message. Zero for other kinds.
func (r Reply) AsString() string { return r.str }

// AsInteger returns the integer payload, zero for other kinds.
func (r Reply) AsInteger() int64 { return r.n }

// AsArray returns the array elements, nil for other kinds.
func (r Reply) AsArray() []Reply { return r.elems }

// String renders the reply for logs and test failures.
func (r Reply) String() string {
	switch r.kind {
	case ReplyString:
		return fmt.Sprintf("string(%q)", r.str)
	case ReplyError:
		return fmt.Sprintf("error(%q)", r.str)
	case ReplyInteger:
		return fmt.Sprintf("integer(%d)", r.n)
	case ReplyArray:
		parts := make([]string, len(r.elems))
		for i, e := range r.elems {
			parts[i] = e.String()
		}
		return "array(" + strings.Join(parts, ", ") + ")"
	default:
		return "nil"
	}
}

// networkFailureReply is the synthetic reply delivered to ping callbacks
// whose connection was torn down before the pong arrived.
func networkFailureReply() Reply {
	return ErrorReply("network failure")
}
