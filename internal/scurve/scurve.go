// Package scurve generates jerk-limited (S-curve) motion trajectories
// for the profile-position motion mode: a monotonic time→position map
// from a rest-to-rest move between two points.
//
// No off-the-shelf S-curve trajectory library covers this need, so the
// seven-segment jerk profile is derived here in closed form from first
// principles (see DESIGN.md for the stdlib-math justification).
package scurve

import (
	"errors"
	"math"
)

// ErrInvalidParameters reports a(ccel)/vel inputs that cannot produce a
// motion profile.
var ErrInvalidParameters = errors.New("scurve: invalid motion parameters")

const (
	maxJerk        = 10.0 // RPS^3, fixed
	incPerRotation = 3600.0
	rpmToRPS       = 1.0 / 60.0
)

// Point is one sample of the generated trajectory: a millisecond offset
// from move start and the position, in increments, at that offset.
type Point struct {
	TimeMS   int64
	Position int32
}

// phase is one jerk segment of the profile, holding the kinematic state
// at its own start so position/velocity/acceleration can be evaluated
// anywhere within it without walking from t=0.
type phase struct {
	duration float64
	jerk     float64
	a0, v0   float64
	p0       float64
}

func buildPhases(tj, ta, tv float64) []phase {
	phases := make([]phase, 0, 7)
	a0, v0, p0 := 0.0, 0.0, 0.0

	add := func(duration, jerk float64) {
		if duration <= 0 {
			return
		}
		phases = append(phases, phase{duration: duration, jerk: jerk, a0: a0, v0: v0, p0: p0})
		a1 := a0 + jerk*duration
		v1 := v0 + a0*duration + jerk*duration*duration/2
		p1 := p0 + v0*duration + a0*duration*duration/2 + jerk*duration*duration*duration/6
		a0, v0, p0 = a1, v1, p1
	}

	add(tj, maxJerk)   // accelerate into acceleration
	add(ta, 0)         // constant acceleration (aPeak)
	add(tj, -maxJerk)  // accelerate out, reaching vPeak
	add(tv, 0)         // cruise at vPeak
	add(tj, -maxJerk)  // decelerate into deceleration
	add(ta, 0)         // constant deceleration (-aPeak)
	add(tj, maxJerk) // decelerate out, reaching rest
	return phases
}

// position evaluates the built profile at elapsed time t (clamped to
// [0, total duration]).
func position(phases []phase, total, t float64) float64 {
	if t <= 0 || len(phases) == 0 {
		return 0
	}
	if t >= total {
		t = total
	}
	cum := 0.0
	for i, ph := range phases {
		end := cum + ph.duration
		if t <= end || i == len(phases)-1 {
			tau := t - cum
			if tau > ph.duration {
				tau = ph.duration
			}
			return ph.p0 + ph.v0*tau + ph.a0*tau*tau/2 + ph.jerk*tau*tau*tau/6
		}
		cum = end
	}
	return phases[len(phases)-1].p0
}

// profile picks the narrowest of the three rest-to-rest jerk-profile
// cases (full trapezoid, triangular velocity, fully triangular) that
// covers distance d with the given constraints, returning the phase
// list and total duration.
func profile(d, jMax, aMax, vMax float64) ([]phase, float64) {
	tj := aMax / jMax
	ta := vMax/aMax + tj
	da := vMax / 2 * ta // distance covered reaching vMax, by point symmetry

	if 2*da <= d {
		tv := (d - 2*da) / vMax
		phases := buildPhases(tj, ta-2*tj, tv)
		total := 2*ta + tv
		return phases, total
	}

	// Triangular velocity: solve for the constant-acceleration duration
	// x such that d = aMax*(x+tj)*(2*tj+x).
	a, b, c := aMax, 3*aMax*tj, 2*aMax*tj*tj-d
	disc := b*b - 4*a*c
	if disc >= 0 {
		x := (-b + math.Sqrt(disc)) / (2 * a)
		if x >= 0 {
			ta2 := 2*tj + x
			phases := buildPhases(tj, x, 0)
			total := 2 * ta2
			return phases, total
		}
	}

	// Fully triangular: jerk-only ramps, accel never reaches aMax.
	tjPrime := math.Cbrt(d / (2 * jMax))
	phases := buildPhases(tjPrime, 0, 0)
	total := 4 * tjPrime
	return phases, total
}

// Generate builds the trajectory for a move from p0 to p1 (increments).
// relative interprets p1 as an offset added to p0 for the curve's end
// point, but the travel magnitude used for the zero-move check and
// sample count is always the literal p1-p0.
func Generate(p0, p1 int32, profileAccel, maxAccel, profileVelocity uint32, relative bool, speedFactor float64) ([]Point, error) {
	if maxAccel == 0 {
		return nil, ErrInvalidParameters
	}
	accel := float64(profileAccel)
	if accel == 0 {
		accel = float64(maxAccel)
	}
	if accel == 0 || profileVelocity == 0 {
		return nil, ErrInvalidParameters
	}
	if speedFactor == 0 {
		speedFactor = 1
	}

	travel := int64(p1) - int64(p0)
	if travel == 0 {
		return []Point{{TimeMS: 0, Position: 0}}, nil
	}

	q0 := float64(p0) / incPerRotation
	var q1 float64
	if relative {
		q1 = q0 + float64(p1)/incPerRotation
	} else {
		q1 = float64(p1) / incPerRotation
	}
	d := q1 - q0
	sign := 1.0
	if d < 0 {
		sign = -1.0
		d = -d
	}

	jMax := maxJerk
	aMax := accel * rpmToRPS
	vMax := float64(profileVelocity) * rpmToRPS

	phases, total := profile(d, jMax, aMax, vMax)

	n := travel
	if n < 0 {
		n = -n
	}
	n /= 10
	if n < 1 {
		n = 1
	}

	points := make([]Point, 0, n+1)
	for i := int64(0); i <= n; i++ {
		t := float64(i) * total / float64(n)
		ms := int64(float64(i) * (total * 1000 / speedFactor) / float64(n))
		pos := q0 + sign*position(phases, total, t)
		points = append(points, Point{
			TimeMS:   ms,
			Position: int32(math.Round(pos * incPerRotation)),
		})
	}
	return points, nil
}
