package exec

import "time"

// StepTimeout bounds a single CompileStep or LinkStep's child-process
// call. Zero means no timeout.
type Options struct {
	Workers     int
	StepTimeout time.Duration
	FailFast    bool
}

// CompileStepResult records one CompileStep's outcome.
type CompileStepResult struct {
	PackageID string
	Source    string
	CacheHit  bool
	Err       error
}

// LinkStepResult records one package's LinkStep outcome.
type LinkStepResult struct {
	PackageID string
	CacheHit  bool
	Err       error
}

// PackageOutcome is one package's full result: every CompileStepResult
// plus the LinkStepResult, if reached.
type PackageOutcome struct {
	PackageID string
	Compiles  []CompileStepResult
	Link      LinkStepResult
	Skipped   bool
}

// Summary is the Executor's final report.
type Summary struct {
	Packages map[string]*PackageOutcome
	Order    []string
}

// Failed reports whether any package in the summary failed.
func (s *Summary) Failed() bool {
	for _, id := range s.Order {
		p := s.Packages[id]
		if p == nil {
			continue
		}
		for _, c := range p.Compiles {
			if c.Err != nil {
				return true
			}
		}
		if p.Link.Err != nil {
			return true
		}
	}
	return false
}
