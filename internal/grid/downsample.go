package grid

import (
	"fmt"
	"math"
)

// Downsample reduces every raster of g by averaging non-overlapping k x k
// blocks. Trailing rows and columns that do not fill a whole block are
// dropped. Non-finite cells are ignored by the mean; a block with no finite
// cell becomes NaN. k == 1 returns g unchanged.
func Downsample(g *Grid, k int) (*Grid, error) {
	if k < 1 {
		return nil, fmt.Errorf("downsample: block factor %d must be at least 1", k)
	}
	if err := g.Validate("downsample"); err != nil {
		return nil, err
	}
	if k == 1 {
		return g, nil
	}

	out := &Grid{
		Lat:   BlockMean(g.Lat, k),
		Lon:   BlockMean(g.Lon, k),
		Value: BlockMean(g.Value, k),
	}
	if len(g.Aux) > 0 {
		out.Aux = make(map[string]Raster, len(g.Aux))
		for name, a := range g.Aux {
			out.Aux[name] = BlockMean(a, k)
		}
	}
	return out, out.Validate("downsample")
}

// BlockMean returns the (Rows/k, Cols/k) raster of NaN-aware block means.
func BlockMean(r Raster, k int) Raster {
	rows, cols := r.Rows/k, r.Cols/k
	out := NewRaster(rows, cols, 0)
	for bi := range rows {
		for bj := range cols {
			var sum float64
			n := 0
			for i := bi * k; i < (bi+1)*k; i++ {
				for _, v := range r.Data[i*r.Cols+bj*k : i*r.Cols+(bj+1)*k] {
					if Finite(v) {
						sum += v
						n++
					}
				}
			}
			if n == 0 {
				out.Set(bi, bj, math.NaN())
			} else {
				out.Set(bi, bj, sum/float64(n))
			}
		}
	}
	return out
}
