package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const recordVersionV1 = 1

type recordWriter struct {
	buf bytes.Buffer
	err error
}

func newRecordWriter(kind byte) *recordWriter {
	w := &recordWriter{}
	w.buf.WriteByte(recordVersionV1)
	w.buf.WriteByte(kind)
	return w
}

func (w *recordWriter) str(s string) {
	if w.err != nil {
		return
	}
	if len(s) > 65535 {
		w.err = errors.New("record field too long")
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *recordWriter) int64(v int64) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *recordWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

type recordReader struct {
	r   *bytes.Reader
	err error
}

func newRecordReader(data []byte, kind byte) (*recordReader, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil || version != recordVersionV1 {
		return nil, fmt.Errorf("%w: version", ErrCorrupt)
	}
	k, err := r.ReadByte()
	if err != nil || k != kind {
		return nil, fmt.Errorf("%w: kind", ErrCorrupt)
	}
	return &recordReader{r: r}, nil
}

func (r *recordReader) str() string {
	if r.err != nil {
		return ""
	}
	var n uint16
	if r.err = binary.Read(r.r, binary.BigEndian, &n); r.err != nil {
		return ""
	}
	b := make([]byte, n)
	if _, r.err = io.ReadFull(r.r, b); r.err != nil {
		return ""
	}
	return string(b)
}

func (r *recordReader) int64() int64 {
	if r.err != nil {
		return 0
	}
	var v int64
	r.err = binary.Read(r.r, binary.BigEndian, &v)
	return v
}

func (r *recordReader) done() error {
	if r.err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, r.err)
	}
	if r.r.Len() != 0 {
		return fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}
	return nil
}

func backendError(err error) error {
	return fmt.Errorf("%w: %v", ErrBackend, err)
}
