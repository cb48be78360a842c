// Package camera implements a pinhole camera model with a 5-parameter
// radial/tangential lens distortion vector. It converts between image-pixel
// space, camera-space rays, and distortion-free image-plane coordinates.
package camera

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a 2D point in image or normalized coordinates.
type Point struct {
	X, Y float64
}

// Ray is a homogeneous 3D point in camera space (Z is the homogeneous
// coordinate for image-plane points, and is 1 after unprojection).
type Ray struct {
	X, Y, Z float64
}

// Pose describes a camera pose as a Rodrigues rotation vector and a
// translation vector. The zero value is the identity pose.
type Pose struct {
	Rvec [3]float64
	Tvec [3]float64
}

// Intrinsics holds a camera's fixed calibration: the 3x3 camera matrix K
// and the 5-element distortion vector D = [k1, k2, p1, p2, k3].
// Intrinsics are immutable for the lifetime of a Model; use a new Model
// to change them.
type Intrinsics struct {
	Name       string
	Resolution [2]int
	K          *mat.Dense
	D          [5]float64
}

// NewIntrinsics builds Intrinsics from a row-major 3x3 camera matrix.
func NewIntrinsics(name string, width, height int, k [3][3]float64, d [5]float64) Intrinsics {
	data := make([]float64, 0, 9)
	for _, row := range k {
		data = append(data, row[0], row[1], row[2])
	}
	return Intrinsics{
		Name:       name,
		Resolution: [2]int{width, height},
		K:          mat.NewDense(3, 3, data),
		D:          d,
	}
}

// Model is a calibrated pinhole camera. All operations accept batches of
// N points (N >= 0) and preserve input ordering.
type Model struct {
	intr Intrinsics

	// cached entries of K
	fx, fy float64
	cx, cy float64
	skew   float64
}

// Inverse distortion is solved by fixed-point iteration; this matches the
// compensate-then-rescale scheme OpenCV uses in undistortPoints.
const undistortIterations = 20

// NewModel validates the intrinsics and constructs a camera model.
func NewModel(intr Intrinsics) (*Model, error) {
	if intr.K == nil {
		return nil, errors.New("camera: intrinsics have no camera matrix")
	}
	if r, c := intr.K.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("camera: camera matrix must be 3x3, got %dx%d", r, c)
	}
	if intr.K.At(0, 0) == 0 || intr.K.At(1, 1) == 0 {
		return nil, errors.New("camera: camera matrix has zero focal length")
	}
	return &Model{
		intr: intr,
		fx:   intr.K.At(0, 0),
		fy:   intr.K.At(1, 1),
		cx:   intr.K.At(0, 2),
		cy:   intr.K.At(1, 2),
		skew: intr.K.At(0, 1),
	}, nil
}

// Intrinsics returns the calibration this model was built with. K is
// copied so callers cannot mutate the model's matrix through it.
func (m *Model) Intrinsics() Intrinsics {
	intr := m.intr
	intr.K = mat.DenseCopyOf(m.intr.K)
	return intr
}

// FocalLength returns the average of the two focal-length entries of K.
// Informational only; no pipeline math depends on it.
func (m *Model) FocalLength() float64 {
	return (m.fx + m.fy) / 2
}

// Unproject converts 2D pixel points to homogeneous 3D rays in camera
// space. With useDistortion the input is treated as lens-distorted pixels
// and the distortion is removed; otherwise D is treated as all zero.
func (m *Model) Unproject(points []Point, useDistortion bool) []Ray {
	rays := make([]Ray, len(points))
	for i, p := range points {
		yn := (p.Y - m.cy) / m.fy
		xn := (p.X - m.cx - m.skew*yn) / m.fx
		if useDistortion {
			xn, yn = m.undistortNormalized(xn, yn)
		}
		rays[i] = Ray{X: xn, Y: yn, Z: 1}
	}
	return rays
}

// Project projects 3D camera-space points onto the image. A nil pose means
// the identity transform (no rotation, no translation). With useDistortion
// the lens distortion D is applied; otherwise D is treated as all zero.
func (m *Model) Project(points []Ray, pose *Pose, useDistortion bool) []Point {
	var rot *mat.Dense
	var tvec [3]float64
	if pose != nil {
		rot = rodrigues(pose.Rvec)
		tvec = pose.Tvec
	}

	out := make([]Point, len(points))
	scratch := mat.NewVecDense(3, nil)
	for i, p := range points {
		x, y, z := p.X, p.Y, p.Z
		if rot != nil {
			scratch.MulVec(rot, mat.NewVecDense(3, []float64{x, y, z}))
			x = scratch.AtVec(0) + tvec[0]
			y = scratch.AtVec(1) + tvec[1]
			z = scratch.AtVec(2) + tvec[2]
		}

		// homogeneous to Cartesian: divide by the third coordinate
		xn := x / z
		yn := y / z

		if useDistortion {
			xn, yn = m.distortNormalized(xn, yn)
		}

		out[i] = Point{
			X: m.fx*xn + m.skew*yn + m.cx,
			Y: m.fy*yn + m.cy,
		}
	}
	return out
}

// UndistortPointsOnImagePlane removes lens distortion from pixel points
// without leaving 2D: unproject with distortion, reproject with the
// identity pose and no distortion.
func (m *Model) UndistortPointsOnImagePlane(points []Point) []Point {
	return m.Project(m.Unproject(points, true), nil, false)
}

// distortNormalized applies the 5-parameter distortion model to a
// normalized image-plane coordinate.
func (m *Model) distortNormalized(x, y float64) (float64, float64) {
	k1, k2, p1, p2, k3 := m.intr.D[0], m.intr.D[1], m.intr.D[2], m.intr.D[3], m.intr.D[4]

	r2 := x*x + y*y
	radial := 1 + r2*(k1+r2*(k2+r2*k3))
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}

// undistortNormalized inverts distortNormalized by fixed-point iteration.
func (m *Model) undistortNormalized(xd, yd float64) (float64, float64) {
	k1, k2, p1, p2, k3 := m.intr.D[0], m.intr.D[1], m.intr.D[2], m.intr.D[3], m.intr.D[4]

	x, y := xd, yd
	for i := 0; i < undistortIterations; i++ {
		r2 := x*x + y*y
		icdist := 1 / (1 + r2*(k1+r2*(k2+r2*k3)))
		deltaX := 2*p1*x*y + p2*(r2+2*x*x)
		deltaY := p1*(r2+2*y*y) + 2*p2*x*y
		x = (xd - deltaX) * icdist
		y = (yd - deltaY) * icdist
	}
	return x, y
}

// rodrigues converts an axis-angle rotation vector to a 3x3 rotation
// matrix: R = I + sin(t)*K + (1-cos(t))*K^2 with K the unit cross matrix.
func rodrigues(rvec [3]float64) *mat.Dense {
	theta := math.Sqrt(rvec[0]*rvec[0] + rvec[1]*rvec[1] + rvec[2]*rvec[2])

	identity := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	if theta < 1e-12 {
		return identity
	}

	kx, ky, kz := rvec[0]/theta, rvec[1]/theta, rvec[2]/theta
	cross := mat.NewDense(3, 3, []float64{
		0, -kz, ky,
		kz, 0, -kx,
		-ky, kx, 0,
	})

	var cross2, term mat.Dense
	cross2.Mul(cross, cross)

	rot := mat.NewDense(3, 3, nil)
	term.Scale(math.Sin(theta), cross)
	rot.Add(identity, &term)
	term.Scale(1-math.Cos(theta), &cross2)
	rot.Add(rot, &term)
	return rot
}
