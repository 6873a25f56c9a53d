package cli

import "time"

// OutputFormat represents the output format type.
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
)

// OutputFlags provides output formatting flags.
type OutputFlags struct {
	Output string `short:"o" help:"Output format: table, json." default:"table" enum:"table,json"`
}

// Format returns the selected format.
func (f *OutputFlags) Format() OutputFormat {
	if f.Output == string(OutputFormatJSON) {
		return OutputFormatJSON
	}
	return OutputFormatTable
}

// IntervalFlag overrides monitor.interval from the config.
type IntervalFlag struct {
	Interval time.Duration `short:"i" help:"Poll interval (overrides monitor.interval)."`
}

// Effective returns the flag value, or the configured interval.
func (f *IntervalFlag) Effective(rt *Runtime) (time.Duration, error) {
	if f.Interval > 0 {
		return f.Interval, nil
	}
	return rt.Config.Monitor.PollInterval()
}

// DBFlag overrides store.path from the config.
type DBFlag struct {
	DB string `name:"db" help:"Sample database path (overrides store.path)."`
}
