// ABOUTME: Build metadata for the ragchat binaries
// ABOUTME: Backs both "ragchat version" and the root --version flag
package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// buildInfo is injected by main through SetVersion
type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var build = buildInfo{Version: "dev", Commit: "none", Date: "unknown"}

// SetVersion records build metadata; call it before NewRootCmd
func SetVersion(version, commit, date string) {
	build = buildInfo{Version: version, Commit: commit, Date: date}
}

// line is the one-line form used by --version
func (b buildInfo) line() string {
	return fmt.Sprintf("ragchat %s (commit %s, built %s, %s %s/%s)",
		b.Version, b.Commit, b.Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !jsonOutput() {
				fmt.Fprintln(cmd.OutOrStdout(), build.line())
				return nil
			}
			data, err := json.MarshalIndent(struct {
				buildInfo
				Go string `json:"go"`
			}{build, runtime.Version()}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
			return nil
		},
	}
}
