package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
)

// Key is a hex-encoded SHA-256 cache key. The one-byte format version
// is the first field hashed into it; it does not appear in the key text.
type Key string

// String returns the key's hex string.
func (k Key) String() string { return string(k) }

// formatVersion is written as the first byte hashed into every key. Bump
// it whenever the field order or content of CompileInput/LinkInput
// changes in a way that should not collide with older keys.
const formatVersion = 1

// builder accumulates length-prefixed fields the same way the teacher's
// task hasher does, so two builders fed the same fields in the same
// order always produce the same digest.
type builder struct {
	h hash.Hash
}

func newBuilder() *builder {
	return &builder{h: sha256.New()}
}

func (b *builder) field(data []byte) *builder {
	length := uint64(len(data))
	prefix := []byte{
		byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
		byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
	}
	b.h.Write(prefix)
	b.h.Write(data)
	return b
}

func (b *builder) fieldStr(s string) *builder { return b.field([]byte(s)) }

// sortedMap writes a string-to-string map's entries sorted by key, so
// map iteration order never leaks into the digest.
func (b *builder) sortedMap(m map[string]string) *builder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.field([]byte{byte(len(keys))})
	for _, k := range keys {
		b.fieldStr(k)
		b.fieldStr(m[k])
	}
	return b
}

func (b *builder) sortedStrings(ss []string) *builder {
	sorted := make([]string, len(ss))
	copy(sorted, ss)
	sort.Strings(sorted)
	b.field([]byte{byte(len(sorted))})
	for _, s := range sorted {
		b.fieldStr(s)
	}
	return b
}

func (b *builder) sum() Key {
	return Key(hex.EncodeToString(b.h.Sum(nil)))
}

// CompileInput is every component that must be hashed into an object's
// cache key: anything that changes it must change the key.
type CompileInput struct {
	// SourcePath is the path of the compilation unit, relative to the
	// package root.
	SourcePath string
	// SourceDigest is the content hash of SourcePath's bytes; headers are
	// covered separately by IncludeDigests.
	SourceDigest string
	// CompilerID identifies the toolchain (family, version, target
	// triple) the object was probed against.
	CompilerID string
	// Flags are the fully assembled compiler flags for this step,
	// already including variant overlays, in assembly order — order is
	// semantically significant for compiler flags, so it is hashed
	// as-given rather than sorted.
	Flags []string
	// IncludeDigests maps each header path to its content digest. The
	// executor fills it with every header found under the step's include
	// directories, not only the headers the compiler reads.
	IncludeDigests map[string]string
}

// ObjectKey computes the cache key for one compiled translation unit.
func ObjectKey(in CompileInput) Key {
	b := newBuilder()
	b.field([]byte{formatVersion})
	b.fieldStr("object")
	b.fieldStr(in.SourcePath)
	b.fieldStr(in.SourceDigest)
	b.fieldStr(in.CompilerID)
	b.field([]byte{byte(len(in.Flags))})
	for _, f := range in.Flags {
		b.fieldStr(f)
	}
	b.sortedMap(in.IncludeDigests)
	return b.sum()
}

// LinkInput is every component that must be hashed into a link step's
// cache key.
type LinkInput struct {
	// ObjectKeys identify every object file feeding this link step, in
	// link order — order matters for static libraries resolved
	// left-to-right, so not sorted. The executor passes each object
	// file's SHA-256 content digest (or its path when the file cannot be
	// read), not the translation unit's ObjectKey.
	ObjectKeys []Key
	// LinkerID identifies the linker/toolchain.
	LinkerID string
	// LDFlags are the fully assembled linker flags, in assembly order.
	LDFlags []string
	// DependencyArtifactKeys identifies each dependency artifact this
	// step links against, so a changed dependency artifact invalidates
	// everything that links against it. The executor keys it by artifact
	// path, covering every transitive dependency, and stores that file's
	// SHA-256 content digest, not the dependency's ArtifactKey.
	DependencyArtifactKeys map[string]string
}

// ArtifactKey computes the cache key for a link step's output artifact.
func ArtifactKey(in LinkInput) Key {
	b := newBuilder()
	b.field([]byte{formatVersion})
	b.fieldStr("artifact")
	b.field([]byte{byte(len(in.ObjectKeys))})
	for _, k := range in.ObjectKeys {
		b.fieldStr(k.String())
	}
	b.fieldStr(in.LinkerID)
	b.field([]byte{byte(len(in.LDFlags))})
	for _, f := range in.LDFlags {
		b.fieldStr(f)
	}
	b.sortedMap(in.DependencyArtifactKeys)
	return b.sum()
}
