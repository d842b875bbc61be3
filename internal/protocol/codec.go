package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
)

// MaxMessageSize is the largest accepted NDJSON line, newline included.
const MaxMessageSize = 64 * 1024

// ReadLine reads one newline-terminated line of at most limit bytes.
// It returns ErrMessageTooLarge as soon as the limit is exceeded.
func ReadLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > limit {
			return nil, ErrMessageTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			return line, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}

// WriteMessage encodes v as a single NDJSON line.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	_, err = w.Write(data)
	return err
}

// Kind returns the type and ID of a raw message without decoding its body.
func Kind(data []byte) (MessageType, string, error) {
	var msg struct {
		Type MessageType `json:"type"`
		ID   string      `json:"id,omitempty"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", "", err
	}
	return msg.Type, msg.ID, nil
}
