package tlog

// Format is the logging format
type Format string

// Format values
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Color controls colored output of text logs
type Color string

// Color values
const (
	ColorAuto Color = "auto"
	ColorYes  Color = "yes"
	ColorNo   Color = "no"
)

// Config describes a top-level logger
type Config struct {
	// Name of the logger, empty for none
	Name string

	// Format of the output
	Format Format

	// Color of the text output
	Color Color

	// Verbose enables debug-level messages
	Verbose bool
}
