// Package nlp solves equality constrained nonlinear programs with a sequential quadratic
// programming method:
//
//	minimize f(x) subject to c(x) = 0
//
// Each iteration solves the KKT system of the quadratic model of the Lagrangian
// L(x, λ) = f(x) + λᵀc(x), and steps along its direction with a backtracking line search on
// the L1 merit function φ(x; ρ) = f(x) + Σ ρⱼ|cⱼ(x)|.
package nlp

import (
	"errors"
	"fmt"
	"math"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrMaxIterations is returned when the KKT conditions are not met within MaxIterations.
	ErrMaxIterations = errors.New("nlp: maximum number of iterations reached")
	// ErrLineSearch is returned when no step decreases the merit function.
	ErrLineSearch = errors.New("nlp: line search failed")
	// ErrSingular is returned when the KKT system cannot be solved.
	ErrSingular = errors.New("nlp: singular KKT system")
)

// Problem is an equality constrained nonlinear program.
type Problem interface {
	// Dims returns the number of variables and constraints.
	Dims() (numVars, numCons int)
	// Objective returns f(x) and its gradient.
	Objective(x []float64) (float64, []float64, error)
	// Constraints returns c(x) and its jacobian, numCons by numVars.
	Constraints(x []float64) ([]float64, mat.Matrix, error)
}

// HessianKind selects how the Hessian of the Lagrangian is obtained.
type HessianKind uint8

const (
	// FiniteDifference differentiates the gradient of the Lagrangian with central differences.
	FiniteDifference HessianKind = iota + 1
	// BFGS uses a damped BFGS update of the Hessian of the Lagrangian.
	BFGS
)

func (h HessianKind) String() string {
	switch h {
	case FiniteDifference:
		return "finite-difference"
	case BFGS:
		return "bfgs"
	default:
		return fmt.Sprintf("HessianKind(%d)", uint8(h))
	}
}

// Settings controls the solver.
type Settings struct {
	MaxIterations int
	// Tolerance on the infinity norms of the Lagrangian gradient and of the constraints.
	Tolerance float64
	Hessian   HessianKind
	Logger    kitlog.Logger
}

// DefaultSettings returns the default solver settings.
func DefaultSettings() Settings {
	return Settings{MaxIterations: 200, Tolerance: 1e-8, Hessian: FiniteDifference}
}

// Result is the outcome of a solve.
type Result struct {
	X          []float64
	Lambda     []float64
	Objective  float64
	Infeasible float64 // infinity norm of the constraints
	Optimality float64 // infinity norm of the Lagrangian gradient
	Iterations int
	Converged  bool
}

func (r Result) String() string {
	return fmt.Sprintf("f=%.10g |c|=%.3e |∇L|=%.3e after %d iterations (converged: %v)", r.Objective, r.Infeasible, r.Optimality, r.Iterations, r.Converged)
}

// iterate is the state of the solver at one point.
type iterate struct {
	x    []float64
	f    float64
	g    []float64
	c    []float64
	jac  *mat.Dense
	gLag []float64
}

// Solve runs the SQP iterations from x0. The result is returned along with
// ErrMaxIterations when the KKT conditions were not met.
func Solve(p Problem, x0 []float64, s Settings) (Result, error) {
	n, m := p.Dims()
	if len(x0) != n {
		return Result{}, fmt.Errorf("nlp: initial guess has %d variables, problem has %d", len(x0), n)
	}
	if s.MaxIterations <= 0 || !(s.Tolerance > 0) {
		return Result{}, fmt.Errorf("nlp: invalid settings %+v", s)
	}
	if s.Hessian == 0 {
		s.Hessian = FiniteDifference
	}
	logger := s.Logger
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	logger = kitlog.With(logger, "subsys", "nlp")

	lambda := make([]float64, m)
	cur, err := evaluate(p, append([]float64(nil), x0...), lambda)
	if err != nil {
		return Result{}, err
	}
	if m > 0 {
		lambda = leastSquaresMultipliers(cur)
		cur.gLag = lagrangianGrad(cur.g, cur.jac, lambda)
	}
	rho := make([]float64, m)
	var bfgs *mat.SymDense
	if s.Hessian == BFGS {
		bfgs = identity(n)
	}
	res := Result{}
	for iter := 0; ; iter++ {
		res = Result{X: cur.x, Lambda: lambda, Objective: cur.f, Iterations: iter}
		res.Infeasible = infNorm(cur.c)
		res.Optimality = infNorm(cur.gLag)
		logger.Log("level", "debug", "iter", iter, "f", cur.f, "infeasible", res.Infeasible, "optimality", res.Optimality)
		if res.Infeasible <= s.Tolerance && res.Optimality <= s.Tolerance {
			res.Converged = true
			logger.Log("level", "info", "status", "converged", "iterations", iter, "f", cur.f)
			return res, nil
		}
		if iter == s.MaxIterations {
			logger.Log("level", "warning", "status", "max iterations", "f", cur.f, "infeasible", res.Infeasible, "optimality", res.Optimality)
			return res, ErrMaxIterations
		}

		var hess *mat.SymDense
		if s.Hessian == BFGS {
			hess = bfgs
		} else if hess, err = lagrangianHessian(p, cur.x, lambda); err != nil {
			return res, err
		}
		dx, newLambda, err := kktStep(hess, cur)
		if err != nil {
			return res, err
		}

		// Penalty update of the merit function.
		for j := range rho {
			l := math.Abs(newLambda[j])
			rho[j] = math.Max(0.5*(rho[j]+l), l) + 1e-8
		}
		next, err := lineSearch(p, cur, dx, rho, newLambda)
		if err != nil {
			logger.Log("level", "warning", "status", "line search failed", "iter", iter)
			return res, err
		}
		if s.Hessian == BFGS {
			// The previous gradient of the Lagrangian is taken with the new multipliers.
			prevGLag := lagrangianGrad(cur.g, cur.jac, newLambda)
			dampedBFGS(bfgs, floatsSub(next.x, cur.x), floatsSub(next.gLag, prevGLag))
		}
		lambda = newLambda
		cur = next
	}
}

// evaluate returns the iterate at x with the Lagrangian gradient taken with lambda.
func evaluate(p Problem, x, lambda []float64) (*iterate, error) {
	n, m := p.Dims()
	f, g, err := p.Objective(x)
	if err != nil {
		return nil, err
	}
	if len(g) != n {
		return nil, fmt.Errorf("nlp: gradient has %d entries, expected %d", len(g), n)
	}
	it := &iterate{x: x, f: f, g: g, jac: &mat.Dense{}}
	if m > 0 {
		c, jac, err := p.Constraints(x)
		if err != nil {
			return nil, err
		}
		if r, cols := jac.Dims(); len(c) != m || r != m || cols != n {
			return nil, fmt.Errorf("nlp: %d constraints with a %dx%d jacobian, expected %d by %d", len(c), r, cols, m, n)
		}
		it.c = c
		it.jac = mat.DenseCopyOf(jac)
	}
	it.gLag = lagrangianGrad(g, it.jac, lambda)
	return it, nil
}

// lagrangianGrad returns ∇f + Jᵀλ.
func lagrangianGrad(g []float64, jac *mat.Dense, lambda []float64) []float64 {
	gLag := append([]float64(nil), g...)
	if len(lambda) == 0 || jac.IsEmpty() {
		return gLag
	}
	out := mat.NewVecDense(len(gLag), gLag)
	var jtl mat.VecDense
	jtl.MulVec(jac.T(), mat.NewVecDense(len(lambda), lambda))
	out.AddVec(out, &jtl)
	return out.RawVector().Data
}

// leastSquaresMultipliers returns the λ minimizing |∇f + Jᵀλ|, or zeros when J is rank
// deficient.
func leastSquaresMultipliers(it *iterate) []float64 {
	m, _ := it.jac.Dims()
	var lambda mat.Dense
	rhs := mat.NewDense(len(it.g), 1, floatsSub(make([]float64, len(it.g)), it.g))
	if err := lambda.Solve(it.jac.T(), rhs); err != nil {
		return make([]float64, m)
	}
	return mat.Col(nil, 0, &lambda)
}

// lagrangianHessian differentiates the gradient of the Lagrangian at x.
func lagrangianHessian(p Problem, x, lambda []float64) (*mat.SymDense, error) {
	n := len(x)
	var evalErr error
	grad := func(y, at []float64) {
		if evalErr != nil {
			return
		}
		it, err := evaluate(p, at, lambda)
		if err != nil {
			evalErr = err
			return
		}
		copy(y, it.gLag)
	}
	dst := mat.NewDense(n, n, nil)
	fd.Jacobian(dst, grad, x, &fd.JacobianSettings{Formula: fd.Central})
	if evalErr != nil {
		return nil, evalErr
	}
	hess := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			hess.SetSym(i, j, 0.5*(dst.At(i, j)+dst.At(j, i)))
		}
	}
	return hess, nil
}

// kktStep solves
//
//	[W+δI  Jᵀ] [dx] = -[g]
//	[J     0 ] [λ ]    [c]
//
// increasing δ until the step has positive curvature.
func kktStep(hess *mat.SymDense, cur *iterate) ([]float64, []float64, error) {
	n := len(cur.x)
	m := len(cur.c)
	rhs := mat.NewVecDense(n+m, nil)
	for i, v := range cur.g {
		rhs.SetVec(i, -v)
	}
	for j, v := range cur.c {
		rhs.SetVec(n+j, -v)
	}
	var sol mat.VecDense
	for delta := 0.0; delta < 1e10; {
		kkt := mat.NewDense(n+m, n+m, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				kkt.Set(i, j, hess.At(i, j))
			}
			kkt.Set(i, i, kkt.At(i, i)+delta)
		}
		if m > 0 {
			kkt.Slice(n, n+m, 0, n).(*mat.Dense).Copy(cur.jac)
			kkt.Slice(0, n, n, n+m).(*mat.Dense).Copy(cur.jac.T())
		}
		var lu mat.LU
		lu.Factorize(kkt)
		if err := lu.SolveVecTo(&sol, false, rhs); err == nil {
			dx := mat.VecDenseCopyOf(sol.SliceVec(0, n))
			var wdx mat.VecDense
			wdx.MulVec(hess, dx)
			curv := mat.Dot(dx, &wdx) + delta*mat.Dot(dx, dx)
			if curv >= 1e-12*mat.Dot(dx, dx) || mat.Norm(dx, math.Inf(1)) == 0 {
				lambda := make([]float64, m)
				for j := range lambda {
					lambda[j] = sol.AtVec(n + j)
				}
				return dx.RawVector().Data, lambda, nil
			}
		}
		if delta == 0 {
			delta = 1e-4
		} else {
			delta *= 10
		}
	}
	return nil, nil, ErrSingular
}

// lineSearch backtracks along dx until the merit function decreases enough.
func lineSearch(p Problem, cur *iterate, dx, rho, lambda []float64) (*iterate, error) {
	merit0 := merit(cur, rho)
	// Directional derivative of the merit function along a step satisfying J*dx = -c.
	slope := floats.Dot(cur.g, dx)
	for j, c := range cur.c {
		slope -= rho[j] * math.Abs(c)
	}
	alpha := 1.0
	x := make([]float64, len(dx))
	for alpha > 1e-10 {
		floats.AddScaledTo(x, cur.x, alpha, dx)
		next, err := evaluate(p, append([]float64(nil), x...), lambda)
		if err == nil && !math.IsNaN(next.f) && merit(next, rho) <= merit0+1e-4*alpha*math.Min(slope, 0) {
			return next, nil
		}
		alpha *= 0.5
	}
	return nil, ErrLineSearch
}

func merit(it *iterate, rho []float64) float64 {
	phi := it.f
	for j, c := range it.c {
		phi += rho[j] * math.Abs(c)
	}
	if math.IsNaN(phi) {
		return math.Inf(1)
	}
	return phi
}

// dampedBFGS updates b in place with Powell's damping, keeping it positive definite.
func dampedBFGS(b *mat.SymDense, s, y []float64) {
	n := len(s)
	sv := mat.NewVecDense(n, s)
	yv := mat.NewVecDense(n, y)
	var bs mat.VecDense
	bs.MulVec(b, sv)
	sBs := mat.Dot(sv, &bs)
	if sBs <= 0 {
		return
	}
	sy := mat.Dot(sv, yv)
	theta := 1.0
	if sy < 0.2*sBs {
		theta = 0.8 * sBs / (sBs - sy)
	}
	// r = θy + (1-θ)Bs
	var r mat.VecDense
	r.ScaleVec(theta, yv)
	r.AddScaledVec(&r, 1-theta, &bs)
	sr := mat.Dot(sv, &r)
	if sr <= 0 {
		return
	}
	b.SymRankOne(b, -1/sBs, &bs)
	b.SymRankOne(b, 1/sr, &r)
}

func identity(n int) *mat.SymDense {
	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetSym(i, i, 1)
	}
	return b
}

func infNorm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

func floatsSub(a, b []float64) []float64 {
	d := make([]float64, len(a))
	floats.SubTo(d, a, b)
	return d
}
