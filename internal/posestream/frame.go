package posestream

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/pose"
)

// Frame is one pose sample as carried on the stream.
type Frame struct {
	MarkerA   geom.Point3
	MarkerB   geom.Point3
	MarkerC   geom.Point3
	Visible   bool
	Seq       uint64
	UpdatedAt time.Time
	Position  geom.Point3
	Normal    geom.Point3
	Yaw       float64
	Pitch     float64
	Roll      float64
}

// FrameFromPose copies the streamed fields out of p.
func FrameFromPose(p pose.Pose) Frame {
	return Frame{
		MarkerA:   p.MarkerA,
		MarkerB:   p.MarkerB,
		MarkerC:   p.MarkerC,
		Visible:   p.Visible,
		Seq:       p.Seq,
		UpdatedAt: p.UpdatedAt,
		Position:  p.Position,
		Normal:    p.Normal,
		Yaw:       p.Yaw,
		Pitch:     p.Pitch,
		Roll:      p.Roll,
	}
}

func vecValue(p geom.Point3) []interface{} {
	return []interface{}{p.X, p.Y, p.Z}
}

// EncodeFrame converts f to a protobuf Struct. Points become three-element
// lists and UpdatedAt an RFC 3339 string, empty before the first packet.
func EncodeFrame(f Frame) (*structpb.Struct, error) {
	updated := ""
	if !f.UpdatedAt.IsZero() {
		updated = f.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(map[string]interface{}{
		"marker_a":   vecValue(f.MarkerA),
		"marker_b":   vecValue(f.MarkerB),
		"marker_c":   vecValue(f.MarkerC),
		"visible":    f.Visible,
		"seq":        float64(f.Seq),
		"updated_at": updated,
		"position":   vecValue(f.Position),
		"normal":     vecValue(f.Normal),
		"yaw":        f.Yaw,
		"pitch":      f.Pitch,
		"roll":       f.Roll,
	})
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(s *structpb.Struct) (Frame, error) {
	fields := s.GetFields()
	var (
		f   Frame
		err error
	)
	vec := func(key string) geom.Point3 {
		if err != nil {
			return geom.Point3{}
		}
		vals := fields[key].GetListValue().GetValues()
		if len(vals) != 3 {
			err = fmt.Errorf("field %s: want 3 components, got %d", key, len(vals))
			return geom.Point3{}
		}
		return geom.Point3{X: vals[0].GetNumberValue(), Y: vals[1].GetNumberValue(), Z: vals[2].GetNumberValue()}
	}

	f.MarkerA = vec("marker_a")
	f.MarkerB = vec("marker_b")
	f.MarkerC = vec("marker_c")
	f.Position = vec("position")
	f.Normal = vec("normal")
	if err != nil {
		return Frame{}, err
	}

	f.Visible = fields["visible"].GetBoolValue()
	f.Seq = uint64(fields["seq"].GetNumberValue())
	f.Yaw = fields["yaw"].GetNumberValue()
	f.Pitch = fields["pitch"].GetNumberValue()
	f.Roll = fields["roll"].GetNumberValue()
	if ts := fields["updated_at"].GetStringValue(); ts != "" {
		f.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Frame{}, fmt.Errorf("field updated_at: %w", err)
		}
	}
	return f, nil
}
