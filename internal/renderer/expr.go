package renderer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Func is a function of time (seconds) that can be evaluated in Go and
// serialised into an FFmpeg per-frame expression over the variable v.
type Func interface {
	Eval(t float64) float64
	Expr(v string) string
}

// Const is a constant value.
type Const float64

func (c Const) Eval(float64) float64 { return float64(c) }
func (c Const) Expr(string) string   { return num(float64(c)) }

// Ramp moves linearly from From to To over [T0, T1] and holds outside it.
type Ramp struct {
	T0, T1   float64
	From, To float64
}

func (r Ramp) Eval(t float64) float64 {
	return r.From + (r.To-r.From)*progress(t, r.T0, r.T1)
}

func (r Ramp) Expr(v string) string {
	return fmt.Sprintf("(%s+(%s)*%s)", num(r.From), num(r.To-r.From), progressExpr(v, r.T0, r.T1))
}

// Ease moves from From to To over [T0, T1] with the quadratic ease-out
// 2p-p², so motion decelerates into the target value.
type Ease struct {
	T0, T1   float64
	From, To float64
}

func (e Ease) Eval(t float64) float64 {
	p := progress(t, e.T0, e.T1)
	return e.From + (e.To-e.From)*(2*p-p*p)
}

func (e Ease) Expr(v string) string {
	p := progressExpr(v, e.T0, e.T1)
	return fmt.Sprintf("(%s+(%s)*(2*%s-pow(%s,2)))", num(e.From), num(e.To-e.From), p, p)
}

// Max is the pointwise maximum of its terms. An empty Max evaluates to 0.
type Max []Func

func (m Max) Eval(t float64) float64 {
	if len(m) == 0 {
		return 0
	}
	out := m[0].Eval(t)
	for _, f := range m[1:] {
		out = math.Max(out, f.Eval(t))
	}
	return out
}

func (m Max) Expr(v string) string {
	return fold("max", []Func(m), v)
}

// Min is the pointwise minimum of its terms. An empty Min evaluates to 0.
type Min []Func

func (m Min) Eval(t float64) float64 {
	if len(m) == 0 {
		return 0
	}
	out := m[0].Eval(t)
	for _, f := range m[1:] {
		out = math.Min(out, f.Eval(t))
	}
	return out
}

func (m Min) Expr(v string) string {
	return fold("min", []Func(m), v)
}

// Step holds Default before Times[0] and Values[i] from Times[i] on.
// Times must be ascending; equal times resolve to the later value.
type Step struct {
	Default float64
	Times   []float64
	Values  []float64
}

func (s Step) Eval(t float64) float64 {
	out := s.Default
	for i, at := range s.Times {
		if t >= at {
			out = s.Values[i]
		}
	}
	return out
}

func (s Step) Expr(v string) string {
	if len(s.Times) == 0 {
		return num(s.Default)
	}
	// Built back to front so the latest threshold is tested first.
	expr := num(s.Default)
	for i := 0; i < len(s.Times); i++ {
		expr = fmt.Sprintf("if(gte(%s,%s),%s,%s)", v, num(s.Times[i]), num(s.Values[i]), expr)
	}
	return expr
}

// Piecewise selects Pieces[i] on [Breaks[i-1], Breaks[i]); it needs exactly
// len(Breaks)+1 pieces, the last one covering everything after the final break.
type Piecewise struct {
	Breaks []float64
	Pieces []Func
}

func (p Piecewise) Eval(t float64) float64 {
	for i, b := range p.Breaks {
		if t < b {
			return p.Pieces[i].Eval(t)
		}
	}
	return p.Pieces[len(p.Pieces)-1].Eval(t)
}

func (p Piecewise) Expr(v string) string {
	expr := p.Pieces[len(p.Pieces)-1].Expr(v)
	for i := len(p.Breaks) - 1; i >= 0; i-- {
		expr = fmt.Sprintf("if(lt(%s,%s),%s,%s)", v, num(p.Breaks[i]), p.Pieces[i].Expr(v), expr)
	}
	return expr
}

// Bezier is a one-dimensional cubic Bezier over [T0, T1] with control values
// P0..P3, holding P0 before and P3 after the window.
type Bezier struct {
	T0, T1         float64
	P0, P1, P2, P3 float64
}

func (b Bezier) Eval(t float64) float64 {
	u := progress(t, b.T0, b.T1)
	w := 1 - u
	return w*w*w*b.P0 + 3*w*w*u*b.P1 + 3*w*u*u*b.P2 + u*u*u*b.P3
}

func (b Bezier) Expr(v string) string {
	u := progressExpr(v, b.T0, b.T1)
	w := "(1-" + u + ")"
	return fmt.Sprintf("(pow(%s,3)*%s+3*pow(%s,2)*%s*%s+3*%s*pow(%s,2)*%s+pow(%s,3)*%s)",
		w, num(b.P0), w, u, num(b.P1), w, u, num(b.P2), u, num(b.P3))
}

// Add, Sub, Mul and Div combine two functions pointwise.
type Add struct{ A, B Func }
type Sub struct{ A, B Func }
type Mul struct{ A, B Func }
type Div struct{ A, B Func }

func (a Add) Eval(t float64) float64 { return a.A.Eval(t) + a.B.Eval(t) }
func (a Add) Expr(v string) string   { return "(" + a.A.Expr(v) + "+" + a.B.Expr(v) + ")" }
func (s Sub) Eval(t float64) float64 { return s.A.Eval(t) - s.B.Eval(t) }
func (s Sub) Expr(v string) string   { return "(" + s.A.Expr(v) + "-" + s.B.Expr(v) + ")" }
func (m Mul) Eval(t float64) float64 { return m.A.Eval(t) * m.B.Eval(t) }
func (m Mul) Expr(v string) string   { return "(" + m.A.Expr(v) + "*" + m.B.Expr(v) + ")" }
func (d Div) Eval(t float64) float64 { return d.A.Eval(t) / d.B.Eval(t) }
func (d Div) Expr(v string) string   { return "(" + d.A.Expr(v) + "/" + d.B.Expr(v) + ")" }

// Clamp bounds X into [Lo, Hi], with Lo taking precedence if the bounds cross.
type Clamp struct{ X, Lo, Hi Func }

func (c Clamp) Eval(t float64) float64 {
	return math.Max(c.Lo.Eval(t), math.Min(c.X.Eval(t), c.Hi.Eval(t)))
}

func (c Clamp) Expr(v string) string {
	return fmt.Sprintf("max(%s,min(%s,%s))", c.Lo.Expr(v), c.X.Expr(v), c.Hi.Expr(v))
}

// Shift delays F by D seconds.
type Shift struct {
	F Func
	D float64
}

func (s Shift) Eval(t float64) float64 { return s.F.Eval(t - s.D) }
func (s Shift) Expr(v string) string   { return s.F.Expr("(" + v + "-" + num(s.D) + ")") }

func progress(t, t0, t1 float64) float64 {
	if t1 <= t0 {
		if t >= t1 {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, (t-t0)/(t1-t0)))
}

func progressExpr(v string, t0, t1 float64) string {
	if t1 <= t0 {
		return fmt.Sprintf("gte(%s,%s)", v, num(t1))
	}
	return fmt.Sprintf("clip((%s-%s)/%s,0,1)", v, num(t0), num(t1-t0))
}

func fold(op string, fs []Func, v string) string {
	switch len(fs) {
	case 0:
		return "0"
	case 1:
		return fs[0].Expr(v)
	}
	expr := fs[0].Expr(v)
	for _, f := range fs[1:] {
		expr = op + "(" + expr + "," + f.Expr(v) + ")"
	}
	return expr
}

// num formats a float compactly; FFmpeg's parser accepts plain decimals only.
func num(f float64) string {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	return s
}
