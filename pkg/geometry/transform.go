package geometry

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"petsirdrecon/internal/models"
)

// toMat44 expands a 3x4 rigid transform into a homogeneous 4x4 matrix
func toMat44(t models.RigidTransform) *mat.Dense {
	data := make([]float64, 16)
	copy(data, t.Matrix[:])
	data[15] = 1
	return mat.NewDense(4, 4, data)
}

func fromMat44(m mat.Matrix) models.RigidTransform {
	var t models.RigidTransform
	for i := 0; i < 12; i++ {
		t.Matrix[i] = m.At(i/4, i%4)
	}
	return t
}

// Compose multiplies the transforms left to right, so the last one is
// applied to a point first. Compose(module, element) places an element
// of a module in scanner space.
func Compose(transforms ...models.RigidTransform) models.RigidTransform {
	result := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		result.Set(i, i, 1)
	}
	for _, t := range transforms {
		var next mat.Dense
		next.Mul(result, toMat44(t))
		result = &next
	}
	return fromMat44(result)
}

// Apply transforms a point in homogeneous coordinates
func Apply(t models.RigidTransform, p r3.Vec) r3.Vec {
	hom := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	var out mat.VecDense
	out.MulVec(toMat44(t), hom)
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Rotation returns t with its translation removed, for transforming
// directions rather than points
func Rotation(t models.RigidTransform) models.RigidTransform {
	t.Matrix[3] = 0
	t.Matrix[7] = 0
	t.Matrix[11] = 0
	return t
}

func toVec(c models.Coordinate) r3.Vec {
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}
}
