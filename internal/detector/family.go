package detector

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/dudu/blazekit/internal/anchor"
)

// Family identifies one of the supported SSD detector models
type Family string

const (
	FamilyFace Family = "face"
	FamilyPose Family = "pose"
	FamilyPalm Family = "palm"
)

// Spec holds everything that differs between detector families
type Spec struct {
	Anchors      anchor.Options
	NumKeypoints int
	// Output indices used when the engine does not report shapes
	BoxesOutput  int
	ScoresOutput int

	ScoreThreshold float32
	IoUThreshold   float32
	MaxResults     int
	ScoreClip      float32
}

// ParseFamily parses a detector family name
func ParseFamily(s string) (Family, error) {
	switch f := Family(strings.ToLower(strings.TrimSpace(s))); f {
	case FamilyFace, FamilyPose, FamilyPalm:
		return f, nil
	case "hand":
		return FamilyPalm, nil
	}
	return "", errors.Errorf("unknown detector family %q", s)
}

// Spec returns the detector spec of the family
func (f Family) Spec() (Spec, error) {
	switch f {
	case FamilyFace:
		return Spec{
			Anchors:        anchor.FaceShortRange(),
			NumKeypoints:   6,
			BoxesOutput:    0,
			ScoresOutput:   1,
			ScoreThreshold: 0.7,
			IoUThreshold:   0.3,
			MaxResults:     100,
			ScoreClip:      100,
		}, nil
	case FamilyPose:
		return Spec{
			Anchors:        anchor.Pose(),
			NumKeypoints:   4,
			BoxesOutput:    0,
			ScoresOutput:   1,
			ScoreThreshold: 0.5,
			IoUThreshold:   0.3,
			MaxResults:     1,
			ScoreClip:      100,
		}, nil
	case FamilyPalm:
		return Spec{
			Anchors:        anchor.Palm(),
			NumKeypoints:   7,
			BoxesOutput:    1,
			ScoresOutput:   0,
			ScoreThreshold: 0.7,
			IoUThreshold:   0.3,
			MaxResults:     100,
			ScoreClip:      100,
		}, nil
	}
	return Spec{}, errors.Errorf("unknown detector family %q", string(f))
}
