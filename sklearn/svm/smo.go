package svm

import (
	"math"
)

const tau = 1e-12

// binaryProblem is the dual of a two-class soft margin SVM:
//
//	min 0.5 a'Qa - e'a  s.t.  y'a = 0, 0 <= a_i <= C_i
//
// with Q_ij = y_i y_j K(x_i, x_j) and y_i in {-1, +1}.
type binaryProblem struct {
	g   *gram
	y   []float64
	c   []float64 // per-sample upper bound, C times the class weight
	tol float64
}

// smoResult holds the solved dual variables and the bias term. The decision
// value of x is sum_i alpha_i y_i K(x_i, x) - rho.
type smoResult struct {
	alpha     []float64
	rho       float64
	nIter     int
	converged bool
}

// solve runs sequential minimal optimization with maximal violating pair
// working set selection.
func (p *binaryProblem) solve(maxIter int) smoResult {
	n := len(p.y)
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	res := smoResult{alpha: alpha}
	for res.nIter < maxIter {
		i, j, gap := p.selectPair(alpha, grad)
		if i < 0 || j < 0 || gap < p.tol {
			res.converged = true
			break
		}
		res.nIter++

		ki, kj := p.g.row(i), p.g.row(j)
		yi, yj := p.y[i], p.y[j]
		ci, cj := p.c[i], p.c[j]
		oldI, oldJ := alpha[i], alpha[j]

		quad := p.g.diag[i] + p.g.diag[j] - 2*ki[j]
		if quad <= 0 {
			quad = tau
		}

		if yi != yj {
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > ci-cj {
				if alpha[i] > ci {
					alpha[i] = ci
					alpha[j] = ci - diff
				}
			} else if alpha[j] > cj {
				alpha[j] = cj
				alpha[i] = cj + diff
			}
		} else {
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > ci {
				if alpha[i] > ci {
					alpha[i] = ci
					alpha[j] = sum - ci
				}
			} else if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if sum > cj {
				if alpha[j] > cj {
					alpha[j] = cj
					alpha[i] = sum - cj
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for k := 0; k < n; k++ {
			// Q_ik = y_i y_k K_ik
			grad[k] += p.y[k] * (yi*ki[k]*dI + yj*kj[k]*dJ)
		}
	}

	res.rho = p.rho(alpha, grad)
	return res
}

func (p *binaryProblem) upper(i int, alpha []float64) bool { return alpha[i] >= p.c[i] }
func (p *binaryProblem) lower(i int, alpha []float64) bool { return alpha[i] <= 0 }

// selectPair returns the maximal violating pair and the size of the violation.
func (p *binaryProblem) selectPair(alpha, grad []float64) (int, int, float64) {
	gmax, gmin := math.Inf(-1), math.Inf(1)
	i, j := -1, -1
	for t := range p.y {
		v := -p.y[t] * grad[t]
		if (p.y[t] > 0 && !p.upper(t, alpha)) || (p.y[t] < 0 && !p.lower(t, alpha)) {
			if v > gmax {
				gmax, i = v, t
			}
		}
		if (p.y[t] > 0 && !p.lower(t, alpha)) || (p.y[t] < 0 && !p.upper(t, alpha)) {
			if v < gmin {
				gmin, j = v, t
			}
		}
	}
	return i, j, gmax - gmin
}

// rho averages y_i G_i over free variables, falling back to the midpoint of
// the feasible interval when every variable is at a bound.
func (p *binaryProblem) rho(alpha, grad []float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree, nFree := 0.0, 0
	for i := range p.y {
		yG := p.y[i] * grad[i]
		switch {
		case p.upper(i, alpha):
			if p.y[i] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case p.lower(i, alpha):
			if p.y[i] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sumFree += yG
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}

// plattScaling fits P(y=+1 | f) = 1 / (1 + exp(A f + B)) to decision values by
// Newton's method with backtracking, using regularized targets.
func plattScaling(dec []float64, positive []bool) (a, b float64) {
	var prior1, prior0 float64
	for _, pos := range positive {
		if pos {
			prior1++
		} else {
			prior0++
		}
	}

	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	t := make([]float64, len(dec))
	for i, pos := range positive {
		if pos {
			t[i] = hiTarget
		} else {
			t[i] = loTarget
		}
	}

	objective := func(a, b float64) float64 {
		f := 0.0
		for i, d := range dec {
			fApB := d*a + b
			if fApB >= 0 {
				f += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b = 0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, d := range dec {
			fApB := d*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := t[i] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA, newB := a+step*dA, b+step*dB
			if newF := objective(newA, newB); newF < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

// sigmoidProba evaluates the fitted Platt sigmoid.
func sigmoidProba(dec, a, b float64) float64 {
	fApB := dec*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}
