package journal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoRoot is returned by every entry point that needs file access when
// no journal root has been configured. It fails fast, before any file is
// touched.
var ErrNoRoot = errors.New("no journal root configured")

// ErrRebuildInProgress is returned to writer calls that arrive while a
// full index rebuild holds the engine.
var ErrRebuildInProgress = errors.New("index rebuild in progress")

// Issue records a single per-file failure during a scan. The enclosing
// scan continues past it.
type Issue struct {
	Path string
	Err  error
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %v", i.Path, i.Err)
}

// ScanError aggregates the per-file failures of a rebuild that otherwise
// completed. Callers receive a populated index and this error together;
// the issues list tells the user which files were skipped.
type ScanError struct {
	Issues []Issue
}

func (e *ScanError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("1 file failed to index: %s", e.Issues[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d files failed to index:", len(e.Issues))

	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(issue.String())
	}

	return b.String()
}
