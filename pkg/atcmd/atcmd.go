// Package atcmd decodes the AT commands a hands-free unit sends over the
// RFCOMM service level connection and formats the audio gateway's replies.
//
// The hands-free side terminates each command with a carriage return (S3).
// The gateway frames every result as "\r\n<text>\r\n". Use Splitter with a
// bufio.Scanner to read commands and Frame to write results:
//
//	sc := bufio.NewScanner(conn)
//	sc.Split(atcmd.Splitter)
//	for sc.Scan() {
//		cmd, err := atcmd.Parse(sc.Text())
//		...
//		conn.Write(atcmd.Frame(atcmd.OK))
//	}
package atcmd

import (
	"bytes"
)

// Final result codes and framing.
const (
	CRLF  = "\r\n"
	OK    = "OK"
	ERROR = "ERROR"
)

// Splitter is a bufio.SplitFunc that yields one AT command per token. Both
// '\r' and '\n' terminate a command; empty lines are skipped.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	// Request more data, dropping the skipped terminators.
	return start, nil, nil
}

// Frame wraps a result in the CRLF framing used by the gateway.
func Frame(s string) []byte {
	b := make([]byte, 0, len(s)+2*len(CRLF))
	b = append(b, CRLF...)
	b = append(b, s...)
	return append(b, CRLF...)
}
