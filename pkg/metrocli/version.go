package metrocli

import (
	"fmt"
	"io"
	"os"
)

// VersionCheckEnv suppresses version mismatch warnings when set.
const VersionCheckEnv = "METRONOM_SUPPRESS_VERSION_CHECK"

// CheckVersionMismatch warns on w when the daemon runs another version
// than expected. It never fails the command.
func (c *Client) CheckVersionMismatch(w io.Writer, expected string) {
	if expected == "" || os.Getenv(VersionCheckEnv) != "" {
		return
	}
	v, err := c.GetDaemonVersion()
	if err != nil {
		fmt.Fprintf(w, "Warning: could not verify daemon version: %v\n", err)
		return
	}
	if v.Version != expected {
		fmt.Fprintf(w, "Warning: CLI version (%s) differs from daemon version (%s)\n", expected, v.Version)
		fmt.Fprintf(w, "Run 'metronom stop-daemon' to restart the daemon with the new version.\n")
	}
}
