package listmode

import (
	"fmt"

	"petsirdrecon/internal/models"
)

// typePair is one cell of the per-block event matrix
type typePair struct {
	first, second int
}

func (p typePair) types() [2]models.TypeOfModule {
	return [2]models.TypeOfModule{models.TypeOfModule(p.first), models.TypeOfModule(p.second)}
}

// typePairs lists the cells of an n x n event matrix in row-major order. A
// row whose length differs from n makes the matrix malformed.
func typePairs(matrix [][][]models.CoincidenceEvent) ([]typePair, error) {
	n := len(matrix)
	pairs := make([]typePair, 0, n*n)
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d of the event matrix has %d module types, want %d",
				models.ErrMalformedStream, i, len(row), n)
		}
		for j := range row {
			pairs = append(pairs, typePair{first: i, second: j})
		}
	}
	return pairs, nil
}
