package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"clydepm/internal/clyerr"
)

// GCCFamily drives any compiler with a GCC-compatible command-line
// interface (gcc, g++, clang, clang++ all accept the same probe and
// diagnostic conventions this driver relies on).
type GCCFamily struct {
	// CC and CXX name the C and C++ compiler executables to invoke,
	// resolved via PATH unless given as an absolute path.
	CC, CXX string
	// Env lists the environment variables visible to the child process,
	// beyond PATH, which is always allowlisted so the compiler can find
	// its own subprocesses (as, ld, cc1).
	Env map[string]string
}

// NewGCCFamily returns a GCCFamily driver using the given compiler
// executables. Passing empty strings defaults to "gcc" and "g++".
func NewGCCFamily(cc, cxx string) *GCCFamily {
	if cc == "" {
		cc = "gcc"
	}
	if cxx == "" {
		cxx = "g++"
	}
	return &GCCFamily{CC: cc, CXX: cxx}
}

var versionLinePattern = regexp.MustCompile(`^\S+\s+\(.*?\)\s+([0-9]+\.[0-9]+\.[0-9]+)`)
var targetPattern = regexp.MustCompile(`(?m)^Target:\s*(\S+)`)

func (d *GCCFamily) Probe(ctx context.Context) (Probe, error) {
	out, err := d.run(ctx, d.CC, []string{"-v"}, "")
	combined := out.stdout + out.stderr
	if err != nil {
		return Probe{}, &clyerr.ToolchainError{Op: "probe", Msg: "compiler did not respond to -v", Err: err}
	}

	family := "gcc"
	if strings.Contains(combined, "clang version") {
		family = "clang"
	}

	version := "unknown"
	for _, line := range strings.Split(combined, "\n") {
		if m := versionLinePattern.FindStringSubmatch(line); m != nil {
			version = m[1]
			break
		}
		if strings.Contains(line, "clang version") {
			fields := strings.Fields(line)
			for i, f := range fields {
				if f == "version" && i+1 < len(fields) {
					version = fields[i+1]
					break
				}
			}
		}
	}

	target := "unknown"
	if m := targetPattern.FindStringSubmatch(combined); m != nil {
		target = m[1]
	}

	return Probe{
		ID:      fmt.Sprintf("%s-%s-%s", family, version, target),
		Family:  family,
		Version: version,
		Target:  target,
	}, nil
}

func (d *GCCFamily) Compile(ctx context.Context, job CompileJob) (CompileResult, error) {
	compiler := d.compilerFor(job.Source)

	depFile := job.Output + ".d"
	args := []string{"-c", job.Source, "-o", job.Output, "-MMD", "-MF", depFile}
	for _, dir := range job.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	args = append(args, job.Flags...)

	out, err := d.run(ctx, compiler, args, job.WorkingDir)
	diagnostics := parseGCCDiagnostics(out.stderr)

	if err != nil {
		return CompileResult{}, &clyerr.CompileError{
			Package:     job.Package,
			Source:      job.Source,
			Diagnostics: diagnostics,
		}
	}

	includes := parseDependencyFile(depFile)
	return CompileResult{ObjectPath: job.Output, Includes: includes}, nil
}

func (d *GCCFamily) Link(ctx context.Context, job LinkJob) (LinkResult, error) {
	compiler := d.CXX
	if job.Kind == "static" {
		return d.linkStatic(ctx, job)
	}

	args := append([]string{}, job.Objects...)
	if job.Kind == "shared" {
		args = append(args, "-shared")
	}
	args = append(args, "-o", job.Output)
	args = append(args, job.Flags...)

	out, err := d.run(ctx, compiler, args, job.WorkingDir)
	if err != nil {
		return LinkResult{}, &clyerr.LinkError{Package: job.Package, Output: job.Output, Msg: strings.TrimSpace(out.stderr)}
	}
	return LinkResult{ArtifactPath: job.Output}, nil
}

func (d *GCCFamily) linkStatic(ctx context.Context, job LinkJob) (LinkResult, error) {
	args := append([]string{"rcs", job.Output}, job.Objects...)
	out, err := d.run(ctx, "ar", args, job.WorkingDir)
	if err != nil {
		return LinkResult{}, &clyerr.LinkError{Package: job.Package, Output: job.Output, Msg: strings.TrimSpace(out.stderr)}
	}
	return LinkResult{ArtifactPath: job.Output}, nil
}

func (d *GCCFamily) compilerFor(source string) string {
	switch filepath.Ext(source) {
	case ".c":
		return d.CC
	default:
		return d.CXX
	}
}

type runOutput struct {
	stdout, stderr string
}

// run executes an allowlisted child process in its own process group, so
// a cancelled context kills the whole invocation (a compiler driver may
// itself fork cc1/as/ld) rather than only the top-level pid.
func (d *GCCFamily) run(ctx context.Context, name string, args []string, dir string) (runOutput, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = buildAllowlistedEnv(d.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return runOutput{}, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return runOutput{stdout: stdout.String(), stderr: stderr.String()}, ctx.Err()
	case err := <-done:
		return runOutput{stdout: stdout.String(), stderr: stderr.String()}, err
	}
}

// buildAllowlistedEnv starts from an empty environment and adds only
// PATH (needed for the compiler driver to find its own subprocesses)
// plus whatever the caller explicitly allowlisted.
func buildAllowlistedEnv(extra map[string]string) []string {
	env := []string{}
	if path, ok := os.LookupEnv("PATH"); ok {
		env = append(env, "PATH="+path)
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

var diagnosticPattern = regexp.MustCompile(`^([^:]+):(\d+):(\d+):\s*(fatal error|error|warning|note):\s*(.*)$`)
var flagPattern = regexp.MustCompile(`\[(-W[\w-]+)\]\s*$`)

func parseGCCDiagnostics(stderr string) []clyerr.Diagnostic {
	var diagnostics []clyerr.Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		m := diagnosticPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		message := m[5]
		flag := ""
		if fm := flagPattern.FindStringSubmatch(message); fm != nil {
			flag = fm[1]
		}
		diagnostics = append(diagnostics, clyerr.Diagnostic{
			Severity: normalizeSeverity(m[4]),
			File:     m[1],
			Line:     lineNo,
			Column:   col,
			Flag:     flag,
			Message:  message,
		})
	}
	return diagnostics
}

// parseDependencyFile extracts the prerequisite paths (the source file
// and its included headers) from a Makefile dependency file emitted by
// -MMD -MF. Best-effort: a missing or
// malformed dependency file yields no discovered includes rather than
// an error, since the object file itself still compiled successfully.
func parseDependencyFile(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	content := strings.ReplaceAll(string(data), "\\\n", " ")
	idx := strings.Index(content, ":")
	if idx < 0 {
		return nil
	}
	fields := strings.Fields(content[idx+1:])
	includes := make([]string, 0, len(fields))
	for _, f := range fields {
		includes = append(includes, f)
	}
	return includes
}
