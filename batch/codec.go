package batch

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// formatVersion is the version of the record format produced by [Marshal].
const formatVersion = 1

// frameHeaderSize is the size of the fixed-length prefix that precedes the
// encoded group: a one-byte format version followed by a 64-bit checksum of
// the body.
const frameHeaderSize = 1 + 8

// ErrCorruptEntry indicates that a journal record does not contain a valid
// encoded mutation group.
//
// Corrupt records are skipped during replay; they are never applied and never
// deleted.
var ErrCorruptEntry = errors.New("batch entry is corrupt")

// Marshal encodes g as a self-describing binary record.
func Marshal(g Group) ([]byte, error) {
	body, err := msgpack.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal mutation group: %w", err)
	}

	data := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	data[0] = formatVersion
	binary.BigEndian.PutUint64(data[1:frameHeaderSize], xxhash.Sum64(body))

	return append(data, body...), nil
}

// Unmarshal decodes a record produced by [Marshal].
//
// It returns an error that satisfies errors.Is(err, ErrCorruptEntry) if data
// is not a valid record.
func Unmarshal(data []byte) (Group, error) {
	if len(data) < frameHeaderSize {
		return Group{}, fmt.Errorf("%w: record is %d byte(s), expected at least %d", ErrCorruptEntry, len(data), frameHeaderSize)
	}

	if v := data[0]; v != formatVersion {
		return Group{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptEntry, v)
	}

	body := data[frameHeaderSize:]

	if sum := binary.BigEndian.Uint64(data[1:frameHeaderSize]); sum != xxhash.Sum64(body) {
		return Group{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptEntry)
	}

	var g Group
	if err := msgpack.Unmarshal(body, &g); err != nil {
		return Group{}, fmt.Errorf("%w: %s", ErrCorruptEntry, err)
	}

	return g, nil
}
