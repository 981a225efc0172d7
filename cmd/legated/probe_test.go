package main

import (
	"strings"
	"testing"
)

func TestStatDeviceRejectsRegularFiles(t *testing.T) {
	if _, ok := statDevice("/etc/hostname"); ok {
		t.Fatal("regular file accepted as a device")
	}
	if _, ok := statDevice("/does/not/exist"); ok {
		t.Fatal("missing path accepted as a device")
	}
}

func TestStatDeviceOnCharDevice(t *testing.T) {
	row, ok := statDevice("/dev/null")
	if !ok {
		t.Skip("/dev/null unavailable")
	}
	if row.Kind != "input" {
		// /dev/null is major 1, so it classifies as non-drm.
		t.Fatalf("kind = %q", row.Kind)
	}
}

func TestRenderDeviceTable(t *testing.T) {
	out := renderDeviceTable([]deviceRow{
		{Path: "/dev/dri/card0", Kind: "drm", Major: 226, Minor: 0},
		{Path: "/dev/input/event2", Kind: "input", Major: 13, Minor: 66},
	})
	for _, want := range []string{"/dev/dri/card0", "drm", "226:0", "/dev/input/event2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %s:\n%s", want, out)
		}
	}
}
