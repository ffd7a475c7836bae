// Package config resolves the CLI's runtime configuration: cache root,
// package-store root, worker count, log level, and manifest search
// names.
//
// Precedence (highest first) is flags > environment > a .clydepm.yml
// project file > built-in defaults, layered with spf13/viper exactly
// as invowk-invowk layers its own CUE-backed config through viper. The
// result is a single immutable RunConfig assembled once at startup;
// nothing downstream reads os.Getenv or os.Getwd directly, the same
// determinism discipline the teacher's CLIInvocation enforced through
// ParseInvocation.
package config
