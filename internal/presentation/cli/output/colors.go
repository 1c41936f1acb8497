package output

import (
	"os"
)

// ColorSupported reports whether f, normally os.Stdout, should receive ANSI
// colors. NO_COLOR wins over FORCE_COLOR; otherwise f must be a terminal with a
// usable TERM.
func ColorSupported(f *os.File) bool {
	return colorSupported(f, os.LookupEnv)
}

func colorSupported(f *os.File, lookup func(string) (string, bool)) bool {
	// See https://no-color.org/
	if _, ok := lookup("NO_COLOR"); ok {
		return false
	}
	if _, ok := lookup("FORCE_COLOR"); ok {
		return true
	}

	if f == nil {
		return false
	}
	stat, err := f.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term, _ := lookup("TERM")
	return term != "" && term != "dumb"
}
