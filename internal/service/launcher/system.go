package launcher

import (
	"os"
	"os/exec"
	"os/user"

	"golang.org/x/sys/unix"
)

// System abstracts process identity and host mutation so the bootstrap flow
// can be driven against a fake in tests. The real implementation is a thin
// veneer over os, os/user and unix.
type System interface {
	// Geteuid returns the effective user ID of the current process.
	Geteuid() int
	// CurrentUser returns the invoking user.
	CurrentUser() (*user.User, error)
	// LookupEnv reads an environment variable.
	LookupEnv(key string) (string, bool)
	// Setenv mutates the environment passed to the launched process.
	Setenv(key, value string) error
	// Environ returns the current environment.
	Environ() []string
	// Stat probes a path.
	Stat(path string) (os.FileInfo, error)
	// Chmod changes permission bits of a path.
	Chmod(path string, mode os.FileMode) error
	// Chdir changes the working directory.
	Chdir(path string) error
	// LookPath resolves an executable on PATH.
	LookPath(file string) (string, error)
	// Exec replaces the current process image. It only returns on failure.
	Exec(argv0 string, argv []string, envv []string) error
	// Executable returns the path of the running binary.
	Executable() (string, error)
}

// hostSystem is the production System backed by the real host.
type hostSystem struct{}

// NewHostSystem returns the System implementation used outside of tests.
func NewHostSystem() System {
	return hostSystem{}
}

func (hostSystem) Geteuid() int {
	return unix.Geteuid()
}

func (hostSystem) CurrentUser() (*user.User, error) {
	return user.Current()
}

func (hostSystem) LookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (hostSystem) Setenv(key, value string) error {
	return os.Setenv(key, value)
}

func (hostSystem) Environ() []string {
	return os.Environ()
}

func (hostSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (hostSystem) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (hostSystem) Chdir(path string) error {
	return os.Chdir(path)
}

func (hostSystem) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (hostSystem) Exec(argv0 string, argv []string, envv []string) error {
	return unix.Exec(argv0, argv, envv)
}

func (hostSystem) Executable() (string, error) {
	return os.Executable()
}
