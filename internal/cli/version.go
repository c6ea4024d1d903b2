package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary. Fields are set via ldflags in
// main; a "dev" build falls back to the module version recorded by
// "go install".
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

var build = BuildInfo{Version: "dev", Commit: "none", Date: "unknown"}

var (
	versionShort bool
	versionJSON  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = versionJSON
		return writeVersion(cmd.OutOrStdout(), currentBuild(), versionShort, versionJSON)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print only the version number")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output in JSON format")
}

// SetVersionInfo records the ldflags values (called from main).
func SetVersionInfo(version, commit, date string) {
	build.Version = version
	build.Commit = commit
	build.Date = date
}

// GetVersion returns the display version, e.g. "v1.2.0" or "dev".
func GetVersion() string {
	return currentBuild().Version
}

func currentBuild() BuildInfo {
	b := build
	if b.Version == "" || b.Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			b.Version = info.Main.Version
		}
	}
	if b.Version != "dev" && b.Version != "" && !strings.HasPrefix(b.Version, "v") {
		b.Version = "v" + b.Version
	}
	b.Go = runtime.Version()
	b.OS = runtime.GOOS
	b.Arch = runtime.GOARCH
	return b
}

func writeVersion(w io.Writer, b BuildInfo, short, asJSON bool) error {
	switch {
	case asJSON:
		return WriteJSONSuccess(w, b)
	case short:
		fmt.Fprintln(w, b.Version)
	default:
		fmt.Fprintf(w, "dozer %s (%s, built %s)\n", b.Version, b.Commit, b.Date)
		fmt.Fprintf(w, "%s %s/%s\n", b.Go, b.OS, b.Arch)
	}
	return nil
}
