// Package devscan watches udev netlink events for the seat's DRM device.
//
// The kernel announces device add/change events over a netlink socket;
// when one matches the configured device node, the registered handler is
// invoked so the daemon can reopen the device through the session helper.
// The monitor runs on its own goroutine and hands work back to the event
// loop via the handler, keeping the single-threaded session model intact.
package devscan
