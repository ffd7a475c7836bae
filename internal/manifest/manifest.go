package manifest

import (
	"regexp"
	"sort"

	"clydepm/internal/semver"
)

// PackageType is one of the two kinds a manifest may declare. Fixed by the
// spec's data model; there is no third "foreign" variant.
type PackageType string

const (
	Library     PackageType = "library"
	Application PackageType = "application"
)

// Language is one of the two source languages a manifest may declare.
type Language string

const (
	C   Language = "c"
	Cpp Language = "cpp"
)

// FlagSet maps a compiler family name (e.g. "gcc", "clang") to a flag
// string for that family.
type FlagSet map[string]string

// Variant is a named overlay of additional flags applied when its trait
// name is present (with any value) in the invocation's trait set.
type Variant struct {
	CFlags  FlagSet
	LDFlags FlagSet
}

// Manifest is the immutable, validated in-memory form of a package.yml
// document.
type Manifest struct {
	// Name may include an organization prefix of the form "@org/name".
	Name     string
	Version  semver.Version
	Type     PackageType
	Language Language

	// Sources holds the glob patterns naming compilation units, relative to
	// the package root.
	Sources []string

	CFlags  FlagSet
	LDFlags FlagSet
	Traits  map[string]string

	// Variants maps a trait name to the flag overlay applied when that
	// trait is present in the active trait set, regardless of its value.
	Variants map[string]Variant

	// Requires maps a dependency name to its version constraint, in its
	// original surface-syntax string form; the resolver parses it lazily
	// so a malformed individual constraint can be reported with the
	// offending requirement's name.
	Requires map[string]string

	// UnknownKeys preserves top-level keys the parser did not recognize,
	// surfaced as warnings rather than errors per §6.
	UnknownKeys []string
}

var namePattern = regexp.MustCompile(`^(@[a-z0-9_-]+/)?[a-z0-9_-]+$`)

// ValidName reports whether name satisfies the manifest name invariant:
// "(@org/)?name" using only lowercase letters, digits, underscore and
// hyphen.
func ValidName(name string) bool {
	return name != "" && namePattern.MatchString(name)
}

// DefaultSources returns the default source glob for a manifest that
// omits "sources", per §6: "src/**/*.{c,cc,cpp,cxx}".
func DefaultSources() []string {
	return []string{"src/**/*.{c,cc,cpp,cxx}"}
}

// DefaultLanguage returns the inferred language when a manifest omits
// "language": Applications default to C, Libraries to C++.
func DefaultLanguage(t PackageType) Language {
	if t == Application {
		return C
	}
	return Cpp
}

// ActiveVariants returns the Variant overlays, sorted by variant name,
// whose gating trait is present in active.
func (m *Manifest) ActiveVariants(active map[string]string) []Variant {
	names := make([]string, 0, len(m.Variants))
	for name := range m.Variants {
		if _, ok := active[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Variant, 0, len(names))
	for _, name := range names {
		out = append(out, m.Variants[name])
	}
	return out
}
