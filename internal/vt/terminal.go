package vt

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"

	"legate/internal/logging"
)

// Terminal wraps the controlling-terminal descriptor inherited from the
// parent process. It does not take ownership until Close.
type Terminal struct {
	fd     int
	logger *slog.Logger
}

// NewTerminal wraps an already-open terminal descriptor.
func NewTerminal(fd int, logger *slog.Logger) *Terminal {
	return &Terminal{fd: fd, logger: logging.NewComponentLogger(logger, "vt")}
}

// FD returns the terminal descriptor.
func (t *Terminal) FD() int {
	return t.fd
}

// Close releases the terminal descriptor.
func (t *Terminal) Close() error {
	return unix.Close(t.fd)
}

// Restore puts the terminal back into a usable state: keyboard un-muted
// and decoding kbMode, text display mode, DRM mastery dropped when drmFD
// is held, and automatic VT switching re-armed. Every step is best-effort;
// failures are logged and the remaining steps still run, because this is
// teardown/crash-recovery code and must not itself fail.
func (t *Terminal) Restore(kbMode int, drmFD int) {
	if err := ioctlInt(t.fd, kdSKBMute, 0); err != nil {
		if err := ioctlInt(t.fd, kdSetKBMode, kbMode); err != nil {
			t.logger.Warn("failed to restore keyboard mode",
				logging.Error(err),
				logging.Int("kb_mode", kbMode),
			)
		}
	}

	if err := ioctlInt(t.fd, kdSetMode, KDText); err != nil {
		t.logger.Warn("failed to set text mode on terminal", logging.Error(err))
	}

	// Drop mastery before VT_AUTO is restored: switching to a VT with
	// another display server still holding master would leave that server
	// unable to acquire the device.
	if drmFD >= 0 {
		if err := DropMaster(drmFD); err != nil {
			t.logger.Warn("failed to drop DRM master", logging.Error(err))
		}
	}

	mode := vtMode{Mode: VTAuto}
	if err := ioctlPtr(t.fd, vtSetMode, unsafe.Pointer(&mode)); err != nil {
		t.logger.Warn("could not reset VT handling", logging.Error(err))
	}
}

// CurrentVT derives the active VT number from the minor device number of
// the terminal descriptor.
func (t *Terminal) CurrentVT() (int, error) {
	var st unix.Stat_t
	if err := unix.Fstat(t.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat terminal: %w", err)
	}
	return MinorOf(uint64(st.Rdev)), nil
}

// Activate requests a switch to VT n. The result is the raw ioctl
// outcome, not interpreted further.
func (t *Terminal) Activate(n int) error {
	if err := ioctlInt(t.fd, vtActivate, n); err != nil {
		return fmt.Errorf("activate vt %d: %w", n, err)
	}
	return nil
}

// MinorOf extracts the device minor from a raw rdev value. On Linux the
// minor of a tty device is its VT number.
func MinorOf(rdev uint64) int {
	return int(unix.Minor(rdev))
}
