package main

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, _ := debug.ReadBuildInfo()
		fmt.Fprintln(cmd.OutOrStdout(), versionString(info))
		return nil
	},
}

// versionString prefers linker-set values and falls back to the module
// version and VCS stamps the go tool embeds.
func versionString(info *debug.BuildInfo) string {
	v, c, d := version, commit, date
	dirty := false
	goVersion := runtime.Version()
	if info != nil {
		if v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		if info.GoVersion != "" {
			goVersion = info.GoVersion
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if c == "" {
					c = s.Value
				}
			case "vcs.time":
				if d == "" {
					d = s.Value
				}
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	}
	if len(c) > 12 {
		c = c[:12]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "paywatch %s", v)
	if c != "" {
		fmt.Fprintf(&b, " commit %s", c)
		if dirty {
			b.WriteString("-dirty")
		}
	}
	if d != "" {
		fmt.Fprintf(&b, " built %s", d)
	}
	fmt.Fprintf(&b, " (%s)", goVersion)
	return b.String()
}
