package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable holding a log spec.
const EnvVar = "VHOSTSTATS_LOG"

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses "text" (the default for "") or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %q", s)
}

// Options configures New.
type Options struct {
	CLISpec    string // --log
	EnvSpec    string // $VHOSTSTATS_LOG
	ConfigSpec string // [logging] level
	Format     Format
	Output     io.Writer // os.Stderr if nil
}

// New builds a logger. The first non-empty of CLISpec, EnvSpec and
// ConfigSpec is used; with none set the base level is info.
func New(opts Options) (*slog.Logger, error) {
	specStr := opts.ConfigSpec
	switch {
	case opts.CLISpec != "":
		specStr = opts.CLISpec
	case opts.EnvSpec != "":
		specStr = opts.EnvSpec
	}

	spec, err := ParseSpec(specStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	// The filtering handler decides; the inner handler passes all.
	handlerOpts := &slog.HandlerOptions{Level: LevelTrace.ToSlog()}
	var inner slog.Handler
	switch opts.Format {
	case FormatJSON:
		inner = slog.NewJSONHandler(output, handlerOpts)
	default:
		inner = slog.NewTextHandler(output, handlerOpts)
	}

	return slog.New(NewFilteringHandler(inner, &spec)), nil
}
