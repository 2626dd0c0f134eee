// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/correlate"
	"buildlog-cli/internal/encode"
	"buildlog-cli/internal/respfile"
	"buildlog-cli/internal/subst"
)

// FormatAuto selects the log format from the file name and its first lines.
const FormatAuto = "auto"

var (
	// ErrInvalidTimeout is returned when the substitution timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid substitution timeout")
	// ErrInvalidJobs is returned when the job count is negative.
	ErrInvalidJobs = errors.New("invalid job count")
	// ErrInvalidMarker is returned when the response-file marker is empty.
	ErrInvalidMarker = errors.New("invalid response-file marker")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// InvalidTimeoutError is returned when SubstitutionConfig.Timeout is zero or negative.
	// It wraps ErrInvalidTimeout for errors.Is() compatibility.
	InvalidTimeoutError struct {
		Value time.Duration
	}

	// InvalidJobsError is returned when Config.Jobs is negative.
	InvalidJobsError struct {
		Value int
	}

	// InvalidReplacementError is returned when a replacement pattern does not compile.
	InvalidReplacementError struct {
		Field string
		Index int
		Err   error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// ReplacementConfig is one regular-expression rewrite applied to raw log text.
	ReplacementConfig struct {
		Pattern     string `json:"pattern" mapstructure:"pattern"`
		Replacement string `json:"replacement" mapstructure:"replacement"`
	}

	// SubstitutionConfig controls evaluation of $(...) and `...` groups.
	SubstitutionConfig struct {
		Enabled bool          `json:"enabled" mapstructure:"enabled"`
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// Config holds the application configuration.
	Config struct {
		// Format is a log format name or "auto".
		Format string `json:"format" mapstructure:"format"`
		// Dialect is the command-line dialect of recovered commands.
		Dialect string `json:"dialect" mapstructure:"dialect"`
		// Output is the record encoding.
		Output       string             `json:"output" mapstructure:"output"`
		Substitution SubstitutionConfig `json:"substitution" mapstructure:"substitution"`
		// ResponseFileMarker prefixes response-file arguments.
		ResponseFileMarker string `json:"response_file_marker" mapstructure:"response_file_marker"`
		// Replacements rewrite raw make/ninja/msbuild lines before correlation.
		Replacements []ReplacementConfig `json:"replacements" mapstructure:"replacements"`
		// TraceReplacements rewrite the argument text of traced exec calls.
		TraceReplacements []ReplacementConfig `json:"trace_replacements" mapstructure:"trace_replacements"`
		// Strict turns any diagnostic into a failing exit status.
		Strict bool `json:"strict" mapstructure:"strict"`
		// Jobs bounds the number of logs parsed at once; 0 means one per CPU.
		Jobs int `json:"jobs" mapstructure:"jobs"`
	}
)

// Error implements the error interface for InvalidTimeoutError.
func (e *InvalidTimeoutError) Error() string {
	return fmt.Sprintf("invalid substitution timeout %s (must be positive)", e.Value)
}

// Unwrap returns ErrInvalidTimeout for errors.Is() compatibility.
func (e *InvalidTimeoutError) Unwrap() error { return ErrInvalidTimeout }

// Error implements the error interface for InvalidJobsError.
func (e *InvalidJobsError) Error() string {
	return fmt.Sprintf("invalid job count %d (must be >= 0)", e.Value)
}

// Unwrap returns ErrInvalidJobs for errors.Is() compatibility.
func (e *InvalidJobsError) Unwrap() error { return ErrInvalidJobs }

// Error implements the error interface for InvalidReplacementError.
func (e *InvalidReplacementError) Error() string {
	return fmt.Sprintf("%s[%d]: %v", e.Field, e.Index, e.Err)
}

// Unwrap returns the compile error, which wraps correlate.ErrInvalidReplacement.
func (e *InvalidReplacementError) Unwrap() error { return e.Err }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid config: %v", e.FieldErrors[0])
	}
	return fmt.Sprintf("invalid config: %d field error(s): %v", len(e.FieldErrors), errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// IsValid returns whether the Config has valid fields, and the field errors
// wrapped in an InvalidConfigError if not.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if !c.AutoFormat() {
		if _, err := correlate.ParseFormat(c.Format); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := cmdline.ParseDialect(c.Dialect); err != nil {
		errs = append(errs, err)
	}
	if _, err := encode.ParseFormat(c.Output); err != nil {
		errs = append(errs, err)
	}
	if c.Substitution.Timeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Value: c.Substitution.Timeout})
	}
	if c.ResponseFileMarker == "" {
		errs = append(errs, ErrInvalidMarker)
	}
	if c.Jobs < 0 {
		errs = append(errs, &InvalidJobsError{Value: c.Jobs})
	}
	if _, err := compileAll("replacements", c.Replacements); err != nil {
		errs = append(errs, err)
	}
	if _, err := compileAll("trace_replacements", c.TraceReplacements); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// AutoFormat reports whether the log format is detected per input.
func (c Config) AutoFormat() bool {
	return c.Format == "" || strings.EqualFold(strings.TrimSpace(c.Format), FormatAuto)
}

// LineReplacements compiles Replacements.
func (c Config) LineReplacements() ([]correlate.Replacement, error) {
	return compileAll("replacements", c.Replacements)
}

// CompiledTraceReplacements compiles TraceReplacements.
func (c Config) CompiledTraceReplacements() ([]correlate.Replacement, error) {
	return compileAll("trace_replacements", c.TraceReplacements)
}

func compileAll(field string, repls []ReplacementConfig) ([]correlate.Replacement, error) {
	out := make([]correlate.Replacement, 0, len(repls))
	for i, s := range repls {
		r, err := correlate.CompileReplacement(s.Pattern, s.Replacement)
		if err != nil {
			return nil, &InvalidReplacementError{Field: field, Index: i, Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Format:  FormatAuto,
		Dialect: cmdline.Shell.String(),
		Output:  encode.JSON.String(),
		Substitution: SubstitutionConfig{
			Enabled: false,
			Timeout: subst.DefaultTimeout,
		},
		ResponseFileMarker: respfile.DefaultMarker,
		Replacements:       []ReplacementConfig{},
		TraceReplacements:  []ReplacementConfig{},
	}
}
