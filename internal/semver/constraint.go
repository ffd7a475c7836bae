package semver

import (
	"fmt"
	"strings"
)

// Kind discriminates the variant carried by a Constraint.
type Kind int

const (
	Exact Kind = iota
	Caret
	Tilde
	GreaterOrEqual
	LessThan
	Range
	GitRef
	LocalPath
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "Exact"
	case Caret:
		return "Caret"
	case Tilde:
		return "Tilde"
	case GreaterOrEqual:
		return "GreaterOrEqual"
	case LessThan:
		return "LessThan"
	case Range:
		return "Range"
	case GitRef:
		return "GitRef"
	case LocalPath:
		return "LocalPath"
	default:
		return "Unknown"
	}
}

// Constraint is a disjunction-free predicate over versions, modeled as a
// tagged union: exactly one variant is populated per Kind.
//
//   - Exact, Caret, Tilde, GreaterOrEqual: use Version
//   - LessThan: use Version as the exclusive upper bound
//   - Range: uses Lo (inclusive) and Hi (exclusive)
//   - GitRef: uses Ref, an opaque string satisfied only by an identical ref
//   - LocalPath: uses Path, satisfied only by a package materialized from
//     that filesystem location
type Constraint struct {
	Kind    Kind
	Version Version
	Lo, Hi  Version
	Ref     string
	Path    string
}

// ConstraintError reports a malformed constraint string.
type ConstraintError struct {
	Input string
	Msg   string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("invalid constraint %q: %s", e.Input, e.Msg)
}

// ParseConstraint parses the constraint surface syntax fixed by the
// manifest grammar: "=x.y.z", "^x.y.z", "~x.y.z", ">=x.y.z", "<x.y.z",
// "local:<path>", "git:<ref>", or a bare "x.y.z" (Exact).
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{}, &ConstraintError{Input: s, Msg: "empty constraint"}
	}

	switch {
	case strings.HasPrefix(s, "local:"):
		path := strings.TrimPrefix(s, "local:")
		if path == "" {
			return Constraint{}, &ConstraintError{Input: s, Msg: "local: requires a path"}
		}
		return Constraint{Kind: LocalPath, Path: path}, nil

	case strings.HasPrefix(s, "git:"):
		ref := strings.TrimPrefix(s, "git:")
		if ref == "" {
			return Constraint{}, &ConstraintError{Input: s, Msg: "git: requires a ref"}
		}
		return Constraint{Kind: GitRef, Ref: ref}, nil

	case strings.HasPrefix(s, "=="), strings.HasPrefix(s, "="):
		v, err := Parse(strings.TrimLeft(s, "="))
		if err != nil {
			return Constraint{}, &ConstraintError{Input: s, Msg: err.Error()}
		}
		return Constraint{Kind: Exact, Version: v}, nil

	case strings.HasPrefix(s, "^"):
		v, err := Parse(strings.TrimPrefix(s, "^"))
		if err != nil {
			return Constraint{}, &ConstraintError{Input: s, Msg: err.Error()}
		}
		return Constraint{Kind: Caret, Version: v}, nil

	case strings.HasPrefix(s, "~"):
		v, err := Parse(strings.TrimPrefix(s, "~"))
		if err != nil {
			return Constraint{}, &ConstraintError{Input: s, Msg: err.Error()}
		}
		return Constraint{Kind: Tilde, Version: v}, nil

	case strings.HasPrefix(s, ">="):
		v, err := Parse(strings.TrimPrefix(s, ">="))
		if err != nil {
			return Constraint{}, &ConstraintError{Input: s, Msg: err.Error()}
		}
		return Constraint{Kind: GreaterOrEqual, Version: v}, nil

	case strings.HasPrefix(s, "<"):
		v, err := Parse(strings.TrimPrefix(s, "<"))
		if err != nil {
			return Constraint{}, &ConstraintError{Input: s, Msg: err.Error()}
		}
		return Constraint{Kind: LessThan, Version: v}, nil

	default:
		v, err := Parse(s)
		if err != nil {
			return Constraint{}, &ConstraintError{Input: s, Msg: err.Error()}
		}
		return Constraint{Kind: Exact, Version: v}, nil
	}
}

// String renders the constraint back to its surface syntax.
func (c Constraint) String() string {
	switch c.Kind {
	case Exact:
		return "=" + c.Version.String()
	case Caret:
		return "^" + c.Version.String()
	case Tilde:
		return "~" + c.Version.String()
	case GreaterOrEqual:
		return ">=" + c.Version.String()
	case LessThan:
		return "<" + c.Version.String()
	case Range:
		return ">=" + c.Lo.String() + ",<" + c.Hi.String()
	case GitRef:
		return "git:" + c.Ref
	case LocalPath:
		return "local:" + c.Path
	default:
		return "<invalid>"
	}
}

// nextMajorCeiling returns the exclusive upper bound for a Caret constraint,
// per the zero-major special case: for x>0 the ceiling is (x+1).0.0; for
// 0.y.z with y>0 the ceiling is 0.(y+1).0; for 0.0.z the ceiling is 0.0.(z+1).
func nextMajorCeiling(v Version) Version {
	switch {
	case v.Major > 0:
		return Version{Major: v.Major + 1}
	case v.Minor > 0:
		return Version{Major: 0, Minor: v.Minor + 1}
	default:
		return Version{Major: 0, Minor: 0, Patch: v.Patch + 1}
	}
}

// nextMinorCeiling returns the exclusive upper bound for a Tilde constraint:
// x.(y+1).0.
func nextMinorCeiling(v Version) Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// Satisfies reports whether c admits v.
//
// Pre-release versions are ordered below their release counterpart and are
// NOT admitted by Caret or Tilde unless the constraint's own base version
// carries a matching pre-release tag on the same (major, minor, patch).
func Satisfies(c Constraint, v Version) bool {
	switch c.Kind {
	case Exact:
		return v.Equal(c.Version)

	case Caret:
		if v.IsPrerelease() && !samePrereleaseTriple(v, c.Version) {
			return false
		}
		ceiling := nextMajorCeiling(c.Version)
		return !v.LessThan(c.Version) && v.LessThan(ceiling)

	case Tilde:
		if v.IsPrerelease() && !samePrereleaseTriple(v, c.Version) {
			return false
		}
		ceiling := nextMinorCeiling(c.Version)
		return !v.LessThan(c.Version) && v.LessThan(ceiling)

	case GreaterOrEqual:
		return !v.LessThan(c.Version)

	case LessThan:
		return v.LessThan(c.Version)

	case Range:
		return !v.LessThan(c.Lo) && v.LessThan(c.Hi)

	case GitRef, LocalPath:
		// Opaque: satisfied only by the single implied candidate the
		// resolver materializes for this constraint, never by version
		// comparison.
		return false

	default:
		return false
	}
}

// samePrereleaseTriple reports whether v is a prerelease of exactly the
// (major, minor, patch) that base names, letting a Caret/Tilde constraint
// whose own base carries a prerelease tag admit prereleases of that triple.
func samePrereleaseTriple(v, base Version) bool {
	return base.IsPrerelease() &&
		v.Major == base.Major && v.Minor == base.Minor && v.Patch == base.Patch
}

// Unsatisfiable is returned by Intersect when no version can satisfy every
// input constraint.
var Unsatisfiable = &ConstraintError{Msg: "constraints admit no common version"}

// Intersect narrows a set of constraints on the same package name to a
// single Range, Exact, or (when no input bounds it above) GreaterOrEqual
// constraint admitting exactly their common versions, or returns
// Unsatisfiable.
//
// GitRef and LocalPath constraints intersect only with themselves (an
// identical ref/path) or with nothing else at all — mixing them with a
// version-range constraint is always unsatisfiable, since they name a
// concrete, non-version-addressed source.
func Intersect(constraints ...Constraint) (Constraint, error) {
	if len(constraints) == 0 {
		return Constraint{}, fmt.Errorf("intersect requires at least one constraint")
	}

	for _, c := range constraints {
		if c.Kind == GitRef || c.Kind == LocalPath {
			for _, other := range constraints {
				if !sameOpaqueConstraint(c, other) {
					return Constraint{}, Unsatisfiable
				}
			}
			return c, nil
		}
	}

	lo := Version{}
	hasLo := false
	hi := Version{}
	hasHi := false
	exactVal := Version{}
	hasExact := false

	for _, c := range constraints {
		switch c.Kind {
		case Exact:
			if hasExact && !c.Version.Equal(exactVal) {
				return Constraint{}, Unsatisfiable
			}
			exactVal = c.Version
			hasExact = true
		case Caret:
			ceiling := nextMajorCeiling(c.Version)
			if !hasLo || c.Version.GreaterThan(lo) {
				lo = c.Version
				hasLo = true
			}
			if !hasHi || ceiling.LessThan(hi) {
				hi = ceiling
				hasHi = true
			}
		case Tilde:
			ceiling := nextMinorCeiling(c.Version)
			if !hasLo || c.Version.GreaterThan(lo) {
				lo = c.Version
				hasLo = true
			}
			if !hasHi || ceiling.LessThan(hi) {
				hi = ceiling
				hasHi = true
			}
		case GreaterOrEqual:
			if !hasLo || c.Version.GreaterThan(lo) {
				lo = c.Version
				hasLo = true
			}
		case LessThan:
			if !hasHi || c.Version.LessThan(hi) {
				hi = c.Version
				hasHi = true
			}
		case Range:
			if !hasLo || c.Lo.GreaterThan(lo) {
				lo = c.Lo
				hasLo = true
			}
			if !hasHi || c.Hi.LessThan(hi) {
				hi = c.Hi
				hasHi = true
			}
		}
	}

	if !hasLo {
		lo = Version{}
	}

	if hasHi && !lo.LessThan(hi) {
		return Constraint{}, Unsatisfiable
	}

	if hasExact {
		if hasLo && lo.GreaterThan(exactVal) {
			return Constraint{}, Unsatisfiable
		}
		if hasHi && !exactVal.LessThan(hi) {
			return Constraint{}, Unsatisfiable
		}
		return Constraint{Kind: Exact, Version: exactVal}, nil
	}

	if !hasHi {
		// No upper bound recorded: unbounded-above range.
		return Constraint{Kind: GreaterOrEqual, Version: lo}, nil
	}

	return Constraint{Kind: Range, Lo: lo, Hi: hi}, nil
}

func sameOpaqueConstraint(a, b Constraint) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case GitRef:
		return a.Ref == b.Ref
	case LocalPath:
		return a.Path == b.Path
	default:
		return false
	}
}
