package hooks

// Point is a stable name for a well-known point in the build
// lifecycle. Subscribers register against one Point; the string
// values are part of this package's public contract and must not be
// renamed.
type Point string

const (
	// Resolution phase.
	PreResolution   Point = "PreResolution"
	PackageDiscovered Point = "PackageDiscovered"
	VersionSelected Point = "VersionSelected"
	PackageFetched  Point = "PackageFetched"
	PostResolution  Point = "PostResolution"

	// Planning phase.
	PrePlan            Point = "PrePlan"
	BuildOrderComputed Point = "BuildOrderComputed"
	PostPlan           Point = "PostPlan"

	// Execution phase.
	PreBuild  Point = "PreBuild"
	PreCompile  Point = "PreCompile"
	PostCompile Point = "PostCompile"
	PreLink     Point = "PreLink"
	PostLink    Point = "PostLink"
	// PostDependencyBuild fires once a library package's LinkStep
	// completes and before any dependent package's CompileSteps begin,
	// so a subscriber can stage that dependency's public headers into
	// a dependent's include search path.
	PostDependencyBuild Point = "PostDependencyBuild"
	PostBuild           Point = "PostBuild"
)
