//go:build linux || darwin

package console

import "golang.org/x/sys/unix"

// rawInput turns off line buffering and echo on the terminal at fd. Output
// processing stays on so newlines still print normally.
func rawInput(fd int) (func(), error) {
	old, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, err
	}

	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &raw); err != nil {
		return nil, err
	}

	return func() { unix.IoctlSetTermios(fd, ioctlSetTermios, old) }, nil
}
