package session

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Environment variables naming the descriptors inherited from the parent
// process. Each is consumed exactly once during Connect.
const (
	// SocketEnv names the connected helper socket descriptor.
	SocketEnv = "LEGATE_SESSION_SOCK"
	// TTYEnv names the controlling terminal descriptor.
	TTYEnv = "LEGATE_TTY_FD"
)

// consumeEnvFD parses the descriptor named by env, hardens it
// close-on-exec, and clears the variable so it cannot be consumed twice.
func consumeEnvFD(env string) (int, error) {
	value := os.Getenv(env)
	if value == "" {
		return -1, fmt.Errorf("%s is not set", env)
	}
	fd, err := strconv.Atoi(value)
	if err != nil || fd < 0 {
		return -1, fmt.Errorf("%s holds %q, not a descriptor number", env, value)
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return -1, fmt.Errorf("inspect descriptor %d from %s: %w", fd, env, err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC); err != nil {
		return -1, fmt.Errorf("set close-on-exec on descriptor %d from %s: %w", fd, env, err)
	}
	os.Unsetenv(env)
	return fd, nil
}
