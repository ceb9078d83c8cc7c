package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, used in log lines and file names.
func (h Hash) Short() string {
	if len(h) < 12 {
		return string(h)
	}
	return string(h[:12])
}

// Fingerprinter accumulates run inputs into a stable hash.
type Fingerprinter struct {
	buf []byte
}

// NewFingerprinter creates an empty fingerprinter
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// String adds a length-prefixed string
func (f *Fingerprinter) String(s string) *Fingerprinter {
	f.buf = binary.AppendUvarint(f.buf, uint64(len(s)))
	f.buf = append(f.buf, s...)
	return f
}

// Float adds the exact bit pattern of v (NaN payloads are normalized)
func (f *Fingerprinter) Float(v float64) *Fingerprinter {
	if math.IsNaN(v) {
		v = math.NaN()
	}
	f.buf = binary.LittleEndian.AppendUint64(f.buf, math.Float64bits(v))
	return f
}

// Floats adds every value of vs in order
func (f *Fingerprinter) Floats(vs []float64) *Fingerprinter {
	f.buf = binary.AppendUvarint(f.buf, uint64(len(vs)))
	for _, v := range vs {
		f.Float(v)
	}
	return f
}

// StringMap adds a map in sorted key order
func (f *Fingerprinter) StringMap(m map[string]string) *Fingerprinter {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.String(k).String(m[k])
	}
	return f
}

// Sum returns the accumulated hash
func (f *Fingerprinter) Sum() Hash {
	return NewHash(f.buf)
}
