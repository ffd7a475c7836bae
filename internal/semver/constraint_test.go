package semver

import "testing"

// TestSatisfiesExact verifies spec property 2 for the Exact variant.
func TestSatisfiesExact(t *testing.T) {
	c, err := ParseConstraint("=1.2.3")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	if !Satisfies(c, MustParse("1.2.3")) {
		t.Errorf("expected =1.2.3 to admit 1.2.3")
	}
	if Satisfies(c, MustParse("1.2.4")) {
		t.Errorf("expected =1.2.3 to reject 1.2.4")
	}
}

// TestSatisfiesCaret verifies property 2's Caret cases, including the
// zero-major special cases.
func TestSatisfiesCaret(t *testing.T) {
	cases := []struct {
		constraint string
		admits     []string
		rejects    []string
	}{
		{"^1.2.3", []string{"1.2.3", "1.9.9", "1.2.4"}, []string{"2.0.0", "1.2.2"}},
		{"^0.2.3", []string{"0.2.3", "0.2.9"}, []string{"0.3.0", "0.2.2"}},
		{"^0.0.3", []string{"0.0.3"}, []string{"0.0.4", "0.1.0"}},
	}

	for _, tc := range cases {
		c, err := ParseConstraint(tc.constraint)
		if err != nil {
			t.Fatalf("ParseConstraint(%q): %v", tc.constraint, err)
		}
		for _, v := range tc.admits {
			if !Satisfies(c, MustParse(v)) {
				t.Errorf("%s should admit %s", tc.constraint, v)
			}
		}
		for _, v := range tc.rejects {
			if Satisfies(c, MustParse(v)) {
				t.Errorf("%s should reject %s", tc.constraint, v)
			}
		}
	}
}

func TestSatisfiesTilde(t *testing.T) {
	c, err := ParseConstraint("~1.2.3")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	for _, v := range []string{"1.2.3", "1.2.9"} {
		if !Satisfies(c, MustParse(v)) {
			t.Errorf("~1.2.3 should admit %s", v)
		}
	}
	for _, v := range []string{"1.3.0", "1.2.2"} {
		if Satisfies(c, MustParse(v)) {
			t.Errorf("~1.2.3 should reject %s", v)
		}
	}
}

func TestCaretRejectsPrereleaseOutsideTriple(t *testing.T) {
	c, err := ParseConstraint("^1.2.3")
	if err != nil {
		t.Fatalf("ParseConstraint: %v", err)
	}
	if Satisfies(c, MustParse("1.2.4-alpha")) {
		t.Errorf("^1.2.3 must not admit a prerelease of a different triple")
	}
}

func TestIntersectNarrowsToRange(t *testing.T) {
	a, _ := ParseConstraint(">=1.0.0")
	b, _ := ParseConstraint("<2.0.0")
	got, err := Intersect(a, b)
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	if got.Kind != Range {
		t.Fatalf("expected Range, got %s", got.Kind)
	}
	if !Satisfies(got, MustParse("1.5.0")) {
		t.Errorf("expected intersection to admit 1.5.0")
	}
	if Satisfies(got, MustParse("2.0.0")) {
		t.Errorf("expected intersection to reject 2.0.0")
	}
}

func TestIntersectUnsatisfiable(t *testing.T) {
	a, _ := ParseConstraint("=1.0.0")
	b, _ := ParseConstraint("=2.0.0")
	if _, err := Intersect(a, b); err == nil {
		t.Errorf("expected Intersect(=1.0.0, =2.0.0) to be unsatisfiable")
	}
}

func TestIntersectSameExactTwiceIsSatisfiable(t *testing.T) {
	a, _ := ParseConstraint("=1.0.0")
	b, _ := ParseConstraint("=1.0.0")
	got, err := Intersect(a, b)
	if err != nil {
		t.Fatalf("Intersect(=1.0.0, =1.0.0): %v", err)
	}
	if got.Kind != Exact || !got.Version.Equal(MustParse("1.0.0")) {
		t.Fatalf("expected Exact 1.0.0, got %s", got.String())
	}
}

func TestIntersectSingleExactIsSatisfiable(t *testing.T) {
	a, _ := ParseConstraint("=1.0.0")
	got, err := Intersect(a)
	if err != nil {
		t.Fatalf("Intersect(=1.0.0): %v", err)
	}
	if got.Kind != Exact || !got.Version.Equal(MustParse("1.0.0")) {
		t.Fatalf("expected Exact 1.0.0, got %s", got.String())
	}
}

func TestIntersectExactWithinRangeIsSatisfiable(t *testing.T) {
	a, _ := ParseConstraint("=1.5.0")
	b, _ := ParseConstraint(">=1.0.0")
	c, _ := ParseConstraint("<2.0.0")
	got, err := Intersect(a, b, c)
	if err != nil {
		t.Fatalf("Intersect(=1.5.0, >=1.0.0, <2.0.0): %v", err)
	}
	if got.Kind != Exact || !got.Version.Equal(MustParse("1.5.0")) {
		t.Fatalf("expected Exact 1.5.0, got %s", got.String())
	}
}

func TestIntersectExactOutsideRangeIsUnsatisfiable(t *testing.T) {
	a, _ := ParseConstraint("=2.5.0")
	b, _ := ParseConstraint("<2.0.0")
	if _, err := Intersect(a, b); err == nil {
		t.Errorf("expected Intersect(=2.5.0, <2.0.0) to be unsatisfiable")
	}
}

func TestIntersectGitRefRequiresIdenticalRef(t *testing.T) {
	a, _ := ParseConstraint("git:main")
	b, _ := ParseConstraint("git:main")
	if _, err := Intersect(a, b); err != nil {
		t.Errorf("identical git refs should intersect cleanly: %v", err)
	}

	c, _ := ParseConstraint("git:develop")
	if _, err := Intersect(a, c); err == nil {
		t.Errorf("different git refs must be unsatisfiable")
	}
}

func TestParseConstraintSurfaceForms(t *testing.T) {
	cases := map[string]Kind{
		"1.2.3":       Exact,
		"=1.2.3":      Exact,
		"^1.2.3":      Caret,
		"~1.2.3":      Tilde,
		">=1.2.3":     GreaterOrEqual,
		"<1.2.3":      LessThan,
		"local:../lib": LocalPath,
		"git:v1.2.3":  GitRef,
	}
	for s, want := range cases {
		c, err := ParseConstraint(s)
		if err != nil {
			t.Fatalf("ParseConstraint(%q): %v", s, err)
		}
		if c.Kind != want {
			t.Errorf("ParseConstraint(%q).Kind = %s, want %s", s, c.Kind, want)
		}
	}
}
