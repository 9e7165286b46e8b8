package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Buffer is host memory standing in for a device buffer.
type Buffer struct {
	data     []byte
	released bool
}

// Size returns the allocated size in bytes.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Write copies data into the start of the buffer.
func (b *Buffer) Write(data []byte) error {
	if b.released {
		return ErrReleasedBuffer
	}
	if len(data) > len(b.data) {
		return errors.Wrapf(ErrOutOfBounds, "write of %d bytes into %d byte buffer", len(data), len(b.data))
	}
	copy(b.data, data)
	return nil
}

// Read returns a copy of the first n bytes.
func (b *Buffer) Read(n int) ([]byte, error) {
	if b.released {
		return nil, ErrReleasedBuffer
	}
	if n < 0 || n > len(b.data) {
		return nil, errors.Wrapf(ErrOutOfBounds, "read of %d bytes from %d byte buffer", n, len(b.data))
	}
	out := make([]byte, n)
	copy(out, b.data)
	return out, nil
}

// Release frees the buffer.
func (b *Buffer) Release() {
	b.released = true
	b.data = nil
}

func (b *Buffer) byteAt(i int) (byte, error) {
	if i < 0 || i >= len(b.data) {
		return 0, errors.Wrapf(ErrOutOfBounds, "byte %d of %d", i, len(b.data))
	}
	return b.data[i], nil
}

func (b *Buffer) load32(word int) (uint32, error) {
	off := word * 4
	if word < 0 || off+4 > len(b.data) {
		return 0, errors.Wrapf(ErrOutOfBounds, "word %d of %d", word, len(b.data)/4)
	}
	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

func (b *Buffer) store32(word int, v uint32) error {
	off := word * 4
	if word < 0 || off+4 > len(b.data) {
		return errors.Wrapf(ErrOutOfBounds, "word %d of %d", word, len(b.data)/4)
	}
	binary.LittleEndian.PutUint32(b.data[off:], v)
	return nil
}
