// Package resp implements the subset of the RESP2 wire protocol that a
// subscriber connection needs: reading server replies (simple strings,
// errors, integers, bulk strings and arrays, including nested arrays and
// null values) and marshalling client commands as multi-bulk arrays.
package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Type identifies the RESP type of a parsed reply.
type Type int

const (
	SimpleString Type = iota
	Error
	Integer
	BulkString
	Array
	Null
)

// Reply is a single parsed RESP reply.
type Reply struct {
	Type  Type
	Str   string  // SimpleString, Error, BulkString
	Int   int64   // Integer
	Elems []Reply // Array
}

// Read parses one complete reply from the reader. It blocks until a full
// reply is available or the underlying reader fails.
func Read(br *bufio.Reader) (Reply, error) {
	line, err := readLine(br)
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, fmt.Errorf("resp: empty reply line")
	}

	payload := string(line[1:])
	switch line[0] {
	case '+':
		return Reply{Type: SimpleString, Str: payload}, nil
	case '-':
		return Reply{Type: Error, Str: payload}, nil
	case ':':
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("resp: bad integer %q", payload)
		}
		return Reply{Type: Integer, Int: n}, nil
	case '$':
		return readBulk(br, payload)
	case '*':
		return readArray(br, payload)
	default:
		return Reply{}, fmt.Errorf("resp: unknown reply type %q", line[0])
	}
}

func readBulk(br *bufio.Reader, header string) (Reply, error) {
	n, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return Reply{}, fmt.Errorf("resp: bad bulk length %q", header)
	}
	if n < 0 {
		return Reply{Type: Null}, nil
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(br, buf); err != nil {
		return Reply{}, err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return Reply{}, fmt.Errorf("resp: bulk string missing terminator")
	}
	return Reply{Type: BulkString, Str: string(buf[:n])}, nil
}

func readArray(br *bufio.Reader, header string) (Reply, error) {
	n, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return Reply{}, fmt.Errorf("resp: bad array length %q", header)
	}
	if n < 0 {
		return Reply{Type: Null}, nil
	}

	elems := make([]Reply, 0, n)
	for i := int64(0); i < n; i++ {
		elem, err := Read(br)
		if err != nil {
			return Reply{}, err
		}
		elems = append(elems, elem)
	}
	return Reply{Type: Array, Elems: elems}, nil
}

// readLine reads a single CRLF-terminated line, stripping the terminator.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("resp: malformed line %q", line)
	}
	return line[:len(line)-2], nil
}

// AppendCommand appends the multi-bulk encoding of a command to dst and
// returns the extended buffer. Every argument is sent as a bulk string,
// which is what Redis expects regardless of content.
func AppendCommand(dst []byte, args ...string) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, '\r', '\n')
	for _, arg := range args {
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(arg)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, arg...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}
