package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"legate/internal/vt"
)

// deviceRow is one probed device node.
type deviceRow struct {
	Path  string
	Kind  string
	Major uint32
	Minor uint32
}

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "List the seat device nodes present on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := probeDevices()
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no seat devices found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDeviceTable(rows))
			return nil
		},
	}
}

// probeDevices stats the DRM and input device nodes a seat would manage.
func probeDevices() []deviceRow {
	var rows []deviceRow
	for _, pattern := range []string{"/dev/dri/card*", "/dev/dri/renderD*", "/dev/input/event*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			row, ok := statDevice(path)
			if ok {
				rows = append(rows, row)
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	return rows
}

func statDevice(path string) (deviceRow, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return deviceRow{}, false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return deviceRow{}, false
	}
	major := unix.Major(uint64(st.Rdev))
	kind := "input"
	if major == vt.DRMMajor {
		kind = "drm"
	}
	return deviceRow{
		Path:  path,
		Kind:  kind,
		Major: major,
		Minor: unix.Minor(uint64(st.Rdev)),
	}, true
}
