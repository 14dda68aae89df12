package sketch

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Binary layout versions. Sparse payloads embed a dense payload after their
// own header.
const (
	denseVersion  = 1
	sparseVersion = 2
)

// MarshalBinary encodes the summary little-endian. The insertion buffer is
// flushed first, so encoding is not read-only.
func (s *Summary) MarshalBinary() ([]byte, error) {
	s.Compress()

	size := 1 + 4 + 4 + 8 + 8 + 4 + len(s.cfg.AbnormalList)*8 + 4 + len(s.sampled)*24
	data := make([]byte, size)

	data[0] = denseVersion
	off := 1
	binary.LittleEndian.PutUint32(data[off:], uint32(s.cfg.CompressThres))
	binary.LittleEndian.PutUint32(data[off+4:], uint32(s.cfg.HeadSize))
	binary.LittleEndian.PutUint64(data[off+8:], math.Float64bits(s.cfg.Error))
	binary.LittleEndian.PutUint64(data[off+16:], uint64(s.count))
	off += 24

	binary.LittleEndian.PutUint32(data[off:], uint32(len(s.cfg.AbnormalList)))
	off += 4
	for _, v := range s.cfg.AbnormalList {
		binary.LittleEndian.PutUint64(data[off:], math.Float64bits(v))
		off += 8
	}

	binary.LittleEndian.PutUint32(data[off:], uint32(len(s.sampled)))
	off += 4
	for _, sm := range s.sampled {
		binary.LittleEndian.PutUint64(data[off:], math.Float64bits(sm.Value))
		binary.LittleEndian.PutUint64(data[off+8:], uint64(sm.G))
		binary.LittleEndian.PutUint64(data[off+16:], uint64(sm.Delta))
		off += 24
	}
	return data, nil
}

// UnmarshalSummary decodes a dense summary produced by MarshalBinary.
func UnmarshalSummary(data []byte) (*Summary, error) {
	if len(data) < 29 {
		return nil, fmt.Errorf("sketch: truncated summary payload (%d bytes)", len(data))
	}
	if data[0] != denseVersion {
		return nil, fmt.Errorf("sketch: unsupported summary version %d", data[0])
	}
	off := 1
	cfg := Config{
		CompressThres: int(binary.LittleEndian.Uint32(data[off:])),
		HeadSize:      int(binary.LittleEndian.Uint32(data[off+4:])),
		Error:         math.Float64frombits(binary.LittleEndian.Uint64(data[off+8:])),
	}
	count := int64(binary.LittleEndian.Uint64(data[off+16:]))
	off += 24

	nAbnormal := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if len(data) < off+nAbnormal*8+4 {
		return nil, fmt.Errorf("sketch: truncated abnormal list")
	}
	for i := 0; i < nAbnormal; i++ {
		cfg.AbnormalList = append(cfg.AbnormalList, math.Float64frombits(binary.LittleEndian.Uint64(data[off:])))
		off += 8
	}

	nSamples := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if len(data) != off+nSamples*24 {
		return nil, fmt.Errorf("sketch: payload length mismatch: expected %d, got %d", off+nSamples*24, len(data))
	}
	s := New(cfg)
	s.count = count
	// MarshalBinary compresses before encoding, so the decoded sequence is
	// already coalesced and the summary is immediately read-only to query.
	s.coalesced = true
	s.sampled = make([]Sample, 0, nSamples)
	for i := 0; i < nSamples; i++ {
		s.sampled = append(s.sampled, Sample{
			Value: math.Float64frombits(binary.LittleEndian.Uint64(data[off:])),
			G:     int64(binary.LittleEndian.Uint64(data[off+8:])),
			Delta: int64(binary.LittleEndian.Uint64(data[off+16:])),
		})
		off += 24
	}
	return s, nil
}

// MarshalBinary encodes the sparse summary: its own header followed by the
// embedded dense payload.
func (s *SparseSummary) MarshalBinary() ([]byte, error) {
	inner, err := s.dense.MarshalBinary()
	if err != nil {
		return nil, err
	}
	data := make([]byte, 1+8+8+8+1+len(inner))
	data[0] = sparseVersion
	off := 1
	binary.LittleEndian.PutUint64(data[off:], uint64(s.smaller))
	binary.LittleEndian.PutUint64(data[off+8:], uint64(s.bigger))
	binary.LittleEndian.PutUint64(data[off+16:], uint64(s.total))
	off += 24
	if s.totalSet {
		data[off] = 1
	}
	off++
	copy(data[off:], inner)
	return data, nil
}

// UnmarshalSparseSummary decodes a sparse summary produced by MarshalBinary.
func UnmarshalSparseSummary(data []byte) (*SparseSummary, error) {
	if len(data) < 26 {
		return nil, fmt.Errorf("sketch: truncated sparse summary payload (%d bytes)", len(data))
	}
	if data[0] != sparseVersion {
		return nil, fmt.Errorf("sketch: unsupported sparse summary version %d", data[0])
	}
	off := 1
	smaller := int64(binary.LittleEndian.Uint64(data[off:]))
	bigger := int64(binary.LittleEndian.Uint64(data[off+8:]))
	total := int64(binary.LittleEndian.Uint64(data[off+16:]))
	off += 24
	totalSet := data[off] == 1
	off++

	dense, err := UnmarshalSummary(data[off:])
	if err != nil {
		return nil, err
	}
	return &SparseSummary{
		dense:    dense,
		smaller:  smaller,
		bigger:   bigger,
		total:    total,
		totalSet: totalSet,
	}, nil
}
