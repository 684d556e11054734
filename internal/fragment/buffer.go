package fragment

import (
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Buffer holds the fragments received so far from one sender.
type Buffer struct {
	Sender string         `msgpack:"sender"`
	Parts  map[int]string `msgpack:"parts"`
	// Expected is the number of parts, known once the terminal part arrived.
	Expected  int       `msgpack:"expected"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

func newBuffer(sender string) *Buffer {
	return &Buffer{Sender: sender, Parts: make(map[int]string, MaxParts)}
}

// Complete reports whether the terminal part is known and every part from 1
// to Expected is present.
func (b *Buffer) Complete() bool {
	if b.Expected <= 0 {
		return false
	}
	for i := 1; i <= b.Expected; i++ {
		if _, ok := b.Parts[i]; !ok {
			return false
		}
	}
	return true
}

// Assemble concatenates parts 1..Expected in order.
func (b *Buffer) Assemble() string {
	var sb strings.Builder
	for i := 1; i <= b.Expected; i++ {
		sb.WriteString(b.Parts[i])
	}
	return sb.String()
}

func encodeBuffer(b *Buffer) ([]byte, error) {
	return msgpack.Marshal(b)
}

func decodeBuffer(raw []byte) (*Buffer, error) {
	var b Buffer
	if err := msgpack.Unmarshal(raw, &b); err != nil {
		return nil, err
	}
	if b.Parts == nil {
		b.Parts = make(map[int]string, MaxParts)
	}
	return &b, nil
}
