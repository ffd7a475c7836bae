package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"clydepm/internal/clyerr"
	"clydepm/internal/semver"
)

// rawVariant mirrors the on-disk shape of a variants map entry.
type rawVariant struct {
	CFlags  map[string]string `yaml:"cflags"`
	LDFlags map[string]string `yaml:"ldflags"`
}

// rawManifest mirrors package.yml's on-disk shape before validation. All
// fields are optional except the three the parser enforces explicitly, so
// that missing-required-field errors name the field rather than surfacing
// a generic YAML decode failure.
type rawManifest struct {
	Name     string                `yaml:"name"`
	Version  string                `yaml:"version"`
	Type     string                `yaml:"type"`
	Language string                `yaml:"language"`
	Sources  []string              `yaml:"sources"`
	CFlags   map[string]string     `yaml:"cflags"`
	LDFlags  map[string]string     `yaml:"ldflags"`
	Traits   map[string]string     `yaml:"traits"`
	Requires map[string]string     `yaml:"requires"`
	Variants map[string]rawVariant `yaml:"variants"`
}

var recognizedKeys = map[string]bool{
	"name": true, "version": true, "type": true, "language": true,
	"sources": true, "cflags": true, "ldflags": true, "traits": true,
	"requires": true, "variants": true,
}

// Parse decodes and validates a package.yml document.
//
// path is used only to annotate ManifestError with provenance; it does not
// affect parsing.
func Parse(data []byte, path string) (*Manifest, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, &ManifestErr{Path: path, Msg: "malformed YAML", Err: err}
	}

	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ManifestErr{Path: path, Msg: "malformed YAML", Err: err}
	}

	var unknown []string
	for k := range generic {
		if !recognizedKeys[k] {
			unknown = append(unknown, k)
		}
	}

	if raw.Name == "" {
		return nil, &ManifestErr{Path: path, Msg: "missing required field \"name\""}
	}
	if !ValidName(raw.Name) {
		return nil, &ManifestErr{Path: path, Msg: fmt.Sprintf("invalid name %q", raw.Name)}
	}
	if raw.Version == "" {
		return nil, &ManifestErr{Path: path, Msg: "missing required field \"version\""}
	}
	version, err := semver.Parse(raw.Version)
	if err != nil {
		return nil, &ManifestErr{Path: path, Msg: "invalid version", Err: err}
	}
	if raw.Type == "" {
		return nil, &ManifestErr{Path: path, Msg: "missing required field \"type\""}
	}

	var pkgType PackageType
	switch raw.Type {
	case string(Library):
		pkgType = Library
	case string(Application):
		pkgType = Application
	default:
		return nil, &ManifestErr{Path: path, Msg: fmt.Sprintf("unknown type %q (expected library|application)", raw.Type)}
	}

	lang := DefaultLanguage(pkgType)
	if raw.Language != "" {
		switch raw.Language {
		case string(C):
			lang = C
		case string(Cpp):
			lang = Cpp
		default:
			return nil, &ManifestErr{Path: path, Msg: fmt.Sprintf("unknown language %q (expected c|cpp)", raw.Language)}
		}
	}

	sources := raw.Sources
	if len(sources) == 0 {
		sources = DefaultSources()
	}

	seenReq := make(map[string]bool, len(raw.Requires))
	for name := range raw.Requires {
		if seenReq[name] {
			return nil, &ManifestErr{Path: path, Msg: fmt.Sprintf("duplicate requirement %q", name)}
		}
		seenReq[name] = true
	}

	variants := make(map[string]Variant, len(raw.Variants))
	for name, rv := range raw.Variants {
		variants[name] = Variant{CFlags: FlagSet(rv.CFlags), LDFlags: FlagSet(rv.LDFlags)}
	}

	m := &Manifest{
		Name:        raw.Name,
		Version:     version,
		Type:        pkgType,
		Language:    lang,
		Sources:     sources,
		CFlags:      FlagSet(raw.CFlags),
		LDFlags:     FlagSet(raw.LDFlags),
		Traits:      raw.Traits,
		Variants:    variants,
		Requires:    raw.Requires,
		UnknownKeys: unknown,
	}

	return m, nil
}

// ManifestErr is the ManifestError variant returned by this package;
// aliased locally so callers can still refer to clyerr.ManifestError by
// its canonical name.
type ManifestErr = clyerr.ManifestError
