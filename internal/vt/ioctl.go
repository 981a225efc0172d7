package vt

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Console and VT ioctl requests (linux/kd.h, linux/vt.h).
const (
	kdSetMode   = 0x4B3A
	kdSetKBMode = 0x4B45
	kdSKBMute   = 0x4B51

	vtSetMode  = 0x5602
	vtActivate = 0x5606
)

// Console state values shared with the helper protocol.
const (
	// KDText is the text console display mode.
	KDText = 0x00
	// KUnicode is the default keyboard decoding mode recorded at connect.
	// The client runs unprivileged and cannot read the true prior mode, so
	// this is the restoration fallback.
	KUnicode = 0x03
	// VTAuto re-arms kernel-managed VT switching.
	VTAuto = 0x00
)

// DRM device ioctls and identity (drm.h, linux/major.h).
const (
	drmIoctlSetMaster  = 0x641E
	drmIoctlDropMaster = 0x641F

	// DRMMajor is the character device major number of DRM nodes.
	DRMMajor = 226
)

// vtMode mirrors struct vt_mode for VT_SETMODE.
type vtMode struct {
	Mode   int8
	Waitv  int8
	Relsig int16
	Acqsig int16
	Frsig  int16
}

func ioctlInt(fd int, req uint, value int) error {
	return unix.IoctlSetInt(fd, req, value)
}

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// DropMaster relinquishes DRM mastery over the device. Must happen before
// VT auto-switching is re-armed so another display server can acquire the
// device without racing us.
func DropMaster(fd int) error {
	return ioctlInt(fd, drmIoctlDropMaster, 0)
}

// SetMaster acquires DRM mastery over the device.
func SetMaster(fd int) error {
	return ioctlInt(fd, drmIoctlSetMaster, 0)
}

// IsDRMDevice reports whether fd refers to a DRM character device.
func IsDRMDevice(fd int) bool {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFCHR && unix.Major(uint64(st.Rdev)) == DRMMajor
}
