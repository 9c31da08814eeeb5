package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dmitrijs2005/clipsync/internal/common"
)

var (
	// ErrUnknownKind is returned for frames whose tag this version does not
	// know. Receivers ignore such frames.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformed marks a frame that is structurally broken. It wraps
	// common.ErrValidation.
	ErrMalformed = fmt.Errorf("malformed frame: %w", common.ErrValidation)
)

// Encode serializes m as [kind][owner?][fields...].
func Encode(m Message) ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 64+len(m.Data))}
	w.u8(uint8(m.Kind))

	switch m.Kind {
	case KindUploadBegin, KindDownloadBegin:
		w.str(m.OwnerID)
		w.str(m.SessionID)
		w.u32(m.TotalChunks)
		w.u32(m.TotalBytes)
		w.str(m.Hash)
	case KindUploadChunk, KindDownloadChunk:
		w.str(m.SessionID)
		w.u32(m.Index)
		w.u32(len(m.Data))
		w.raw(m.Data)
	case KindHashCheck:
		w.str(m.OwnerID)
		w.str(m.Hash)
	case KindDownloadRequest, KindNoData, KindCancel, KindOwnerJoin, KindOwnerLeave:
		w.str(m.OwnerID)
	default:
		return nil, fmt.Errorf("encode %s: %w", m.Kind, ErrUnknownKind)
	}

	if w.err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind, w.err)
	}
	return w.buf, nil
}

// Decode parses one frame. Structural problems wrap ErrMalformed; an unknown
// tag yields ErrUnknownKind with Kind set on the returned message.
func Decode(b []byte) (Message, error) {
	r := &reader{buf: b}
	m := Message{Kind: Kind(r.u8())}
	if r.err != nil {
		return Message{}, r.err
	}

	switch m.Kind {
	case KindUploadBegin, KindDownloadBegin:
		m.OwnerID = r.str()
		m.SessionID = r.str()
		m.TotalChunks = r.u32()
		m.TotalBytes = r.u32()
		m.Hash = r.str()
	case KindUploadChunk, KindDownloadChunk:
		m.SessionID = r.str()
		m.Index = r.u32()
		n := r.u32()
		m.Data = r.raw(n)
	case KindHashCheck:
		m.OwnerID = r.str()
		m.Hash = r.str()
	case KindDownloadRequest, KindNoData, KindCancel, KindOwnerJoin, KindOwnerLeave:
		m.OwnerID = r.str()
	default:
		return m, ErrUnknownKind
	}

	if r.err != nil {
		return Message{}, fmt.Errorf("decode %s: %w", m.Kind, r.err)
	}
	if len(r.buf) != r.off {
		return Message{}, fmt.Errorf("decode %s: %d trailing bytes: %w", m.Kind, len(r.buf)-r.off, ErrMalformed)
	}
	return m, nil
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u32(v int) {
	if v < 0 || int64(v) > math.MaxUint32 {
		w.fail(fmt.Errorf("integer %d out of range: %w", v, ErrMalformed))
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) str(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Errorf("string of %d bytes too long: %w", len(s), ErrMalformed))
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, len(r.buf)-r.off, ErrMalformed)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() int {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int(binary.BigEndian.Uint32(b))
}

func (r *reader) str() string {
	lb := r.take(2)
	if lb == nil {
		return ""
	}
	return string(r.take(int(binary.BigEndian.Uint16(lb))))
}

// raw copies the payload so that the message does not pin the frame buffer.
func (r *reader) raw(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
