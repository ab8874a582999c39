package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledboard/board-bootstrap/internal/logger"
)

// Variant names a selectable game sharing the launch mechanism.
type Variant string

// Supported variants. DefaultVariant applies when the operator names none.
const (
	VariantChess    Variant = "chess"
	VariantCheckers Variant = "checkers"

	DefaultVariant = VariantChess
)

const (
	// SessionUserEnv forwards the pre-elevation username across the sudo hop.
	SessionUserEnv = "BOARD_SESSION_USER"
	// SessionUIDEnv forwards the pre-elevation UID across the sudo hop.
	SessionUIDEnv = "BOARD_SESSION_UID"

	// devicePath is the memory-access node the LED driver needs.
	devicePath = "/dev/gpiomem"
	// deviceMode is the minimum permission set required on devicePath.
	deviceMode os.FileMode = 0o666

	// interpreterPath is the game interpreter, relative to the install root.
	interpreterPath = "venv/bin/python3"

	// busSocketName is the session bus socket under the runtime directory.
	busSocketName = "bus"

	// fallbackDisplay is used when no display socket is found.
	fallbackDisplay = ":0"
)

// displayCandidates are probed in order; the numbering convention on the
// target platform is significant, so the order must not change.
var displayCandidates = []struct {
	display string
	socket  string
}{
	{display: ":0", socket: "/tmp/.X11-unix/X0"},
	{display: ":1", socket: "/tmp/.X11-unix/X1"},
}

// entryPoints maps each variant to its entry script, relative to the install root.
var entryPoints = map[Variant]string{
	VariantChess:    "chessgame.py",
	VariantCheckers: "checkersgame.py",
}

var (
	// ErrUnknownVariant is returned for a variant outside the enumeration.
	ErrUnknownVariant = errors.New("unknown game variant")

	// errRootWithoutSession is returned when the launcher runs elevated with
	// no forwarded user session to attach display and audio to.
	errRootWithoutSession = errors.New("refusing to run as root without a user session")

	// errInterpreterMissing is returned when the dependency environment is absent.
	errInterpreterMissing = errors.New("python interpreter not found, run the installer first")

	// errEntryMissing is returned when the resolved entry script is absent.
	errEntryMissing = errors.New("game entry script not found")
)

// Options are inputs accepted by the bootstrap entry point.
type Options struct {
	// Variant selects the game to launch. Empty means DefaultVariant.
	Variant string
	// InstallDir overrides the installation root. Empty means "the directory
	// containing the launcher binary".
	InstallDir string
	// LogLevel is the verbosity the invocation was started with. It is
	// carried across the privilege hop so the elevated process logs at the
	// same level; the launcher itself does not consume it.
	LogLevel string
}

// identity is the session the launched game attaches to: the human user's
// display and audio session, even when the process itself runs elevated.
type identity struct {
	username string
	uid      int
}

// Bootstrapper prepares the runtime environment and hands off execution.
type Bootstrapper struct {
	sys System
}

// New returns a Bootstrapper driven by the provided System.
func New(sys System) *Bootstrapper {
	return &Bootstrapper{sys: sys}
}

// Run executes the bootstrap flow with the real host System.
// On success it does not return: the process image is replaced by the game.
func Run(ctx context.Context, opts *Options) error {
	return New(NewHostSystem()).Run(ctx, opts)
}

// Resolve maps a variant name to its entry script. An empty name selects the
// default variant. The lookup happens before any side effect, so an invalid
// variant aborts with the environment untouched.
func Resolve(name string) (string, error) {
	variant := Variant(name)
	if name == "" {
		variant = DefaultVariant
	}

	entry, found := entryPoints[variant]
	if !found {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}

	return entry, nil
}

// Run resolves the variant, establishes the session environment, escalates
// privilege if needed and replaces the process image with the game.
func (b *Bootstrapper) Run(ctx context.Context, opts *Options) error {
	entry, err := Resolve(opts.Variant)
	if err != nil {
		return err
	}

	installDir, err := b.resolveInstallDir(opts.InstallDir)
	if err != nil {
		return fmt.Errorf("resolve installation root: %w", err)
	}

	session, err := b.sessionIdentity()
	if err != nil {
		return err
	}

	logger.Infof(ctx, "Launching %s for session user %s (uid %d)",
		entry, session.username, session.uid)

	// Hardware memory access needs an elevated process. The re-exec below is
	// exactly one hop: the elevated process observes euid 0 and falls through.
	if b.sys.Geteuid() != 0 {
		return b.escalate(ctx, opts, installDir, session)
	}

	if err = b.establishEnvironment(ctx, session); err != nil {
		return err
	}

	b.ensureDeviceAccess(ctx)

	return b.launch(ctx, installDir, entry)
}

// resolveInstallDir derives the installation root from the launcher binary's
// own location, not the caller's working directory, so relative asset paths
// inside the game always resolve.
func (b *Bootstrapper) resolveInstallDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	executable, err := b.sys.Executable()
	if err != nil {
		return "", err
	}

	return filepath.Dir(executable), nil
}

// sessionIdentity resolves the user whose session the game should attach to.
// Forwarded overrides from a previous elevation hop win, then sudo's own
// bookkeeping, then the invoking user. Plain root with no session is refused:
// the root session has no display or audio sockets to target.
func (b *Bootstrapper) sessionIdentity() (identity, error) {
	if name, ok := b.sys.LookupEnv(SessionUserEnv); ok && name != "" {
		uid, err := b.lookupSessionUID()
		if err != nil {
			return identity{}, err
		}

		return identity{username: name, uid: uid}, nil
	}

	if name, ok := b.sys.LookupEnv("SUDO_USER"); ok && name != "" {
		if raw, found := b.sys.LookupEnv("SUDO_UID"); found {
			uid, err := strconv.Atoi(raw)
			if err != nil {
				return identity{}, fmt.Errorf("invalid SUDO_UID %q: %w", raw, err)
			}

			return identity{username: name, uid: uid}, nil
		}
	}

	current, err := b.sys.CurrentUser()
	if err != nil {
		return identity{}, fmt.Errorf("resolve current user: %w", err)
	}

	uid, err := strconv.Atoi(current.Uid)
	if err != nil {
		return identity{}, fmt.Errorf("invalid uid %q: %w", current.Uid, err)
	}

	if uid == 0 {
		return identity{}, errRootWithoutSession
	}

	return identity{username: current.Username, uid: uid}, nil
}

// lookupSessionUID reads the forwarded UID override.
func (b *Bootstrapper) lookupSessionUID() (int, error) {
	raw, ok := b.sys.LookupEnv(SessionUIDEnv)
	if !ok {
		return 0, fmt.Errorf("%s is set but %s is not", SessionUserEnv, SessionUIDEnv)
	}

	uid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", SessionUIDEnv, raw, err)
	}

	return uid, nil
}

// escalate re-executes the same invocation under sudo: the variant and flags
// travel in the argument vector while the session identity rides across
// sudo's environment reset as VAR=value assignments, so runtime-dir, display
// and bus resolution downstream still target the human user's session rather
// than root's.
func (b *Bootstrapper) escalate(ctx context.Context, opts *Options, installDir string, session identity) error {
	sudoPath, err := b.sys.LookPath("sudo")
	if err != nil {
		return fmt.Errorf("privilege escalation unavailable: %w", err)
	}

	executable, err := b.sys.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	logger.Info(ctx, "Hardware access requires elevation, re-executing under sudo")

	// sudo accepts VAR=value assignments ahead of the command; the session
	// identity and any preset display ride across the environment reset.
	argv := []string{
		"sudo",
		fmt.Sprintf("%s=%s", SessionUserEnv, session.username),
		fmt.Sprintf("%s=%d", SessionUIDEnv, session.uid),
	}

	if display, ok := b.sys.LookupEnv("DISPLAY"); ok && display != "" {
		argv = append(argv, "DISPLAY="+display)
	}

	argv = append(argv, executable)
	if opts.Variant != "" {
		argv = append(argv, opts.Variant)
	}

	// The resolved root, not the raw flag: the elevated process must not
	// re-derive it from its own location when the caller overrode it.
	argv = append(argv, "--install-dir", installDir)

	if opts.LogLevel != "" {
		argv = append(argv, "--log-level", opts.LogLevel)
	}

	if err = b.sys.Exec(sudoPath, argv, b.sys.Environ()); err != nil {
		return fmt.Errorf("re-execute under sudo: %w", err)
	}

	return nil
}

// establishEnvironment exports the runtime directory, display target and
// session bus address of the session identity. Probe failures are warnings
// with safe fallbacks; preset values from the caller are passed through.
func (b *Bootstrapper) establishEnvironment(ctx context.Context, session identity) error {
	runtimeDir := "/run/user/" + strconv.Itoa(session.uid)

	if err := b.sys.Setenv("XDG_RUNTIME_DIR", runtimeDir); err != nil {
		return fmt.Errorf("set runtime directory: %w", err)
	}

	if display, ok := b.sys.LookupEnv("DISPLAY"); ok && display != "" {
		logger.Debugf(ctx, "DISPLAY preset to %s, skipping probe", display)
	} else if err := b.probeDisplay(ctx); err != nil {
		return err
	}

	busSocket := filepath.Join(runtimeDir, busSocketName)
	if _, err := b.sys.Stat(busSocket); err == nil {
		if err = b.sys.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+busSocket); err != nil {
			return fmt.Errorf("set bus address: %w", err)
		}
	} else {
		logger.Warnf(ctx, "No session bus socket at %s, audio routing may degrade", busSocket)
	}

	return nil
}

// probeDisplay tries the candidate display identifiers in order and picks the
// first whose backing socket exists, falling back to a default with a warning.
func (b *Bootstrapper) probeDisplay(ctx context.Context) error {
	for _, candidate := range displayCandidates {
		if _, err := b.sys.Stat(candidate.socket); err != nil {
			continue
		}

		logger.Debugf(ctx, "Display socket found, using %s", candidate.display)

		if err := b.sys.Setenv("DISPLAY", candidate.display); err != nil {
			return fmt.Errorf("set display: %w", err)
		}

		return nil
	}

	logger.Warnf(ctx, "No display socket found, falling back to %s", fallbackDisplay)

	if err := b.sys.Setenv("DISPLAY", fallbackDisplay); err != nil {
		return fmt.Errorf("set display: %w", err)
	}

	return nil
}

// ensureDeviceAccess widens the permission bits of the hardware device node
// when they are narrower than required. Failure is a warning: a udev rule or
// group membership may already grant equivalent access.
func (b *Bootstrapper) ensureDeviceAccess(ctx context.Context) {
	info, err := b.sys.Stat(devicePath)
	if err != nil {
		logger.Warnf(ctx, "Hardware device %s not present: %v", devicePath, err)
		return
	}

	current := info.Mode().Perm()
	if current&deviceMode == deviceMode {
		return
	}

	if err = b.sys.Chmod(devicePath, current|deviceMode); err != nil {
		logger.Warnf(ctx, "Unable to widen access to %s: %v", devicePath, err)
	}
}

// launch verifies the interpreter and entry script exist, moves to the
// installation root and replaces the process image with the game.
// It only returns on failure.
func (b *Bootstrapper) launch(ctx context.Context, installDir, entry string) error {
	interpreter := filepath.Join(installDir, interpreterPath)
	if _, err := b.sys.Stat(interpreter); err != nil {
		return fmt.Errorf("%w: %s", errInterpreterMissing, interpreter)
	}

	entryPath := filepath.Join(installDir, entry)
	if _, err := b.sys.Stat(entryPath); err != nil {
		return fmt.Errorf("%w: %s", errEntryMissing, entryPath)
	}

	if err := b.sys.Chdir(installDir); err != nil {
		return fmt.Errorf("enter installation root: %w", err)
	}

	logger.Infof(ctx, "Handing off to %s", entryPath)

	if err := b.sys.Exec(interpreter, []string{interpreter, entryPath}, b.sys.Environ()); err != nil {
		return fmt.Errorf("execute game: %w", err)
	}

	return nil
}
