package neural_network

import (
	"math"

	"github.com/YuminosukeSato/cvscore/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// adam keeps first and second moment estimates for a fixed set of flat
// parameter slices.
type adam struct {
	lr           float64
	beta1, beta2 float64
	epsilon      float64
	t            int
	m, v         [][]float64
}

func newAdam(lr float64, params ...[]float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, epsilon: 1e-8}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

// update applies one bias-corrected Adam step; params[k] and grads[k] must
// line up with the slices given to newAdam.
func (a *adam) update(params, grads [][]float64) {
	a.t++
	step := a.lr * math.Sqrt(1-math.Pow(a.beta2, float64(a.t))) / (1 - math.Pow(a.beta1, float64(a.t)))
	for k, p := range params {
		m, v, g := a.m[k], a.v[k], grads[k]
		for i := range p {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			p[i] -= step * m[i] / (math.Sqrt(v[i]) + a.epsilon)
		}
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + errors.StabilizeExp(-x))
}

// softmax normalizes row in place.
func softmax(row []float64) {
	lse := floats.LogSumExp(row)
	for j, v := range row {
		row[j] = math.Exp(v - lse)
	}
}

const probClip = 1e-10

// logLoss is the mean cross-entropy of probabilities P against targets Y.
// A single column is read as the probability of the positive class.
func logLoss(Y, P *mat.Dense) float64 {
	n, cols := P.Dims()
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			p := errors.ClipValue(P.At(i, j), probClip, 1-probClip)
			y := Y.At(i, j)
			total -= y * math.Log(p)
			if cols == 1 {
				total -= (1 - y) * math.Log(1-p)
			}
		}
	}
	return total / float64(n)
}

func squaredNorm(w *mat.Dense) float64 {
	raw := w.RawMatrix().Data
	return floats.Dot(raw, raw)
}

func scaled(f float64, w *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, w)
	return &out
}

func colMeans(d *mat.Dense) []float64 {
	n, cols := d.Dims()
	out := make([]float64, cols)
	for i := 0; i < n; i++ {
		floats.Add(out, d.RawRowView(i))
	}
	floats.Scale(1/float64(n), out)
	return out
}
