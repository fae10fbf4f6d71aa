package version

import (
	"fmt"
	"io"
	"runtime"

	"github.com/alvarorichard/anistream/internal/tracking"
)

// Version and Commit are overridden at link time with -ldflags -X.
var (
	Version = "0.3.0"
	Commit  = "dev"
)

// String is the one-line build description.
func String() string {
	store := "without SQLite store"
	if tracking.IsCgoEnabled {
		store = "with SQLite store"
	}
	return fmt.Sprintf("anistream v%s (%s, %s, %s/%s)", Version, Commit, store, runtime.GOOS, runtime.GOARCH)
}

// ShowVersion prints String to w.
func ShowVersion(w io.Writer) {
	fmt.Fprintln(w, String())
}
