// Package vecmath holds the small 3D vector type used by the viewpoint
// follower and the X3D SFVec3f field encoding it reads and writes.
package vecmath

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vec3 is a 3D vector value.
type Vec3 struct {
	X, Y, Z float64
}

// Zero is the null vector.
var Zero = Vec3{}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Div divides every component by s. Division by zero follows IEEE semantics.
func (v Vec3) Div(s float64) Vec3 { return Vec3{v.X / s, v.Y / s, v.Z / s} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// IsZero reports whether all components are exactly zero.
func (v Vec3) IsZero() bool { return v == Zero }

// String formats the vector as an X3D SFVec3f field value: "x y z".
func (v Vec3) String() string {
	return formatFloat(v.X) + " " + formatFloat(v.Y) + " " + formatFloat(v.Z)
}

// ParseVec3 parses an SFVec3f value. Components may be separated by
// whitespace or commas.
func ParseVec3(s string) (Vec3, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 3 {
		return Zero, fmt.Errorf("invalid SFVec3f %q: expected 3 components, got %d", s, len(fields))
	}
	var out [3]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Zero, fmt.Errorf("invalid SFVec3f %q: %w", s, err)
		}
		out[i] = n
	}
	return Vec3{out[0], out[1], out[2]}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
