package inference

import (
	"strings"

	"github.com/pkg/errors"
)

// Normalization is the value range a model expects for 8-bit pixels
type Normalization int

const (
	// NormalizeUnit maps pixels to [0, 1]
	NormalizeUnit Normalization = iota
	// NormalizeSigned maps pixels to [-1, 1]
	NormalizeSigned
)

func (n Normalization) String() string {
	if n == NormalizeSigned {
		return "signed"
	}
	return "unit"
}

// ScaleOffset returns a, b such that value = a*pixel + b
func (n Normalization) ScaleOffset() (float64, float64) {
	if n == NormalizeSigned {
		return 2.0 / 255.0, -1
	}
	return 1.0 / 255.0, 0
}

// ParseNormalization parses "unit" or "signed"
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unit", "0,1":
		return NormalizeUnit, nil
	case "signed", "-1,1":
		return NormalizeSigned, nil
	}
	return NormalizeUnit, errors.Errorf("unknown normalization %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (n Normalization) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (n *Normalization) UnmarshalText(text []byte) error {
	v, err := ParseNormalization(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}
