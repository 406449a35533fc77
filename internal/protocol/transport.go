package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize is the maximum size of one request line.
const MaxMessageSize = 4 * 1024 * 1024

// readLines scans r line by line until EOF or a read error and forwards
// every non-empty line. The channel is closed when reading stops.
func readLines(r io.Reader, lines chan<- []byte, errs chan<- error) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxMessageSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		line := append([]byte(nil), scanner.Bytes()...)
		lines <- line
	}
	if err := scanner.Err(); err != nil {
		errs <- fmt.Errorf("error reading input: %w", err)
	}
}

// decode parses one request line.
func decode(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("error parsing JSON-RPC message: %w", err)
	}
	return &msg, nil
}

// writeMessage writes msg as a single line.
func (s *Server) writeMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error marshaling JSON-RPC message: %w", err)
	}
	s.logger.Debug("Sending message", "bytes", len(data))
	if _, err := fmt.Fprintf(s.out, "%s\n", data); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}
	return nil
}
