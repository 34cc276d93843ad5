// Package logging constructs the zerolog logger this worker passes down
// to every other component. Per §9's redesign note on global singleton
// configuration, there is no package-level logger here — New returns a
// value the entry point owns and threads through explicitly, the same
// pretty-console-vs-JSON posture as the teacher's observability logger
// (InitLogger's pretty bool) without its global-singleton storage.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level. When file is empty the
// logger writes to stdout using a human-readable zerolog.ConsoleWriter,
// matching the teacher's pretty=true branch for terminal output;
// otherwise it writes JSON lines to file, matching the teacher's
// pretty=false production branch. This mirrors §6's log.level/log.file
// configuration keys: file output is always machine-parseable, terminal
// output is always console-formatted.
func New(level, file string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	var out io.Writer
	if file == "" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	} else {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("logging: opening %s: %w", file, err)
		}
		out = f
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
