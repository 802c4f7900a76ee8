package logging

import "github.com/fatih/color"

// Per-level colorizer, built once. SprintFunc already respects color.NoColor
// (set when stderr isn't a tty, or NO_COLOR is set), so callers never need to
// special-case monochrome output themselves.
var levelColorizer = map[Level]func(a ...interface{}) string{
	Error: color.New(color.FgRed, color.Bold).SprintFunc(),
	Warn:  color.New(color.FgYellow).SprintFunc(),
	Info:  color.New(color.FgGreen).SprintFunc(),
	Debug: color.New(color.FgCyan).SprintFunc(),
}

var traceColorizer = color.New(color.FgMagenta).SprintFunc()

// colorize renders "letter/tag" in the color associated with this level.
func (l Level) colorize(s string) string {
	if fn, ok := levelColorizer[l]; ok {
		return fn(s)
	}
	return traceColorizer(s)
}
