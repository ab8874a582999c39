package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/ledboard/board-bootstrap/internal/logger"
	"github.com/ledboard/board-bootstrap/internal/service/common"
)

const (
	// abbrevLength is how many hex digits of a revision are shown in logs.
	abbrevLength = 7

	// stagingPattern names the transient directory holding preserved paths
	// while the working tree is rewritten.
	stagingPattern = ".board-update-*"
)

// DefaultStopExecutables names the processes stopped before a destructive
// reset. The appliance runs its games under the venv interpreter.
//
//nolint:gochecknoglobals // Compiled-in default, overridable per run.
var DefaultStopExecutables = []string{"python3"}

var (
	// ErrUpdateAvailable signals, via exit status, that the remote has moved
	// past the local installation. Returned instead of mutating anything when
	// running in check-only mode.
	ErrUpdateAvailable = errors.New("update available")

	// errBranchNotFound is returned when the remote lacks the tracked branch.
	errBranchNotFound = errors.New("branch not found on remote")

	// errSettingsNotSet is returned when the synchronizer is constructed
	// without its required settings.
	errSettingsNotSet = errors.New("synchronizer settings are not set")
)

// Settings parameterize a synchronizer run. The remote URL and branch are
// fixed constants at the operator surface; they are injected here so tests
// can point the synchronizer at a local fixture repository.
type Settings struct {
	// InstallDir is the installation root holding the working tree.
	InstallDir string
	// RemoteURL is the upstream repository.
	RemoteURL string
	// Branch is the branch the installation follows.
	Branch string
	// SettingsFile is the preserved user settings file, relative to InstallDir.
	SettingsFile string
	// BackupSuffix is appended to SettingsFile for the transient backup.
	BackupSuffix string
	// KeepPaths lists untracked paths that survive the post-reset cleanup.
	KeepPaths []string
	// CheckOnly performs the revision comparison without mutating anything.
	CheckOnly bool
	// StopExecutables names processes stopped before a destructive reset.
	StopExecutables []string
}

// synchronizer holds the state for a single run.
type synchronizer struct {
	s *Settings
}

// stashEntry records where a preserved path sits while the tree is rewritten.
type stashEntry struct {
	staged   string
	original string
}

// Run executes the synchronizer once and is the public entry point for the
// CLI. It is a straight-line sequence with branch points, not a service.
func Run(ctx context.Context, s *Settings) error {
	ctx = logger.WithName(ctx, "board-updater")

	if s == nil {
		return errSettingsNotSet
	}

	if s.InstallDir == "" || s.RemoteURL == "" || s.Branch == "" {
		return fmt.Errorf("%w: install dir, remote URL and branch are required", errSettingsNotSet)
	}

	sync := &synchronizer{s: s}

	repo, err := gogit.PlainOpen(s.InstallDir)
	if err == nil {
		// Opening alone proves nothing: go-git opens directories containing
		// garbage metadata without complaint. The tracked path additionally
		// needs a resolvable local revision and the configured remote.
		usableErr := trackingUsable(repo)
		if usableErr == nil {
			return sync.synchronize(ctx, repo)
		}

		err = usableErr
	}

	// No usable tracking metadata. In check-only mode that alone means an
	// update is pending; otherwise initialize from scratch, discarding
	// whatever partial metadata is present.
	if s.CheckOnly {
		logger.Info(ctx, "Installation is not tracked yet")
		return ErrUpdateAvailable
	}

	if !errors.Is(err, gogit.ErrRepositoryNotExists) {
		logger.Warnf(ctx, "Tracking metadata unusable (%v), reinitializing", err)
	}

	return sync.initialize(ctx)
}

// trackingUsable reports whether the opened repository carries everything the
// tracked path depends on. Anything less counts as partial metadata.
func trackingUsable(repo *gogit.Repository) error {
	if _, err := repo.Head(); err != nil {
		return fmt.Errorf("local revision unresolvable: %w", err)
	}

	if _, err := repo.Remote(gogit.DefaultRemoteName); err != nil {
		return fmt.Errorf("remote %s not configured: %w", gogit.DefaultRemoteName, err)
	}

	return nil
}

// initialize converts an untracked installation into a tracked clone of the
// remote branch, preserving the user settings file across the checkout.
func (u *synchronizer) initialize(ctx context.Context) error {
	logger.Infof(ctx, "Initializing tracking of %s (%s)", u.s.RemoteURL, u.s.Branch)

	// Reachability and revision lookup happen before any mutation.
	remoteHash, err := u.remoteHead(ctx)
	if err != nil {
		return fmt.Errorf("reach remote: %w", err)
	}

	restore, err := u.backupSettings(ctx)
	if err != nil {
		return err
	}

	unstash, err := u.stashPreserved(ctx)
	if err != nil {
		return err
	}

	initErr := u.recreateTracking(ctx, remoteHash)

	// The preserved paths come back whether or not the checkout succeeded.
	if err = unstash(ctx); err != nil {
		return err
	}

	if initErr != nil {
		return initErr
	}

	logger.Infof(ctx, "Installation now tracks %s at %s", u.s.Branch, abbrev(remoteHash))

	return restore(ctx)
}

// recreateTracking replaces whatever metadata is present with a fresh
// repository pointed at the remote and checks out the fetched revision.
func (u *synchronizer) recreateTracking(ctx context.Context, remoteHash plumbing.Hash) error {
	// Partial metadata is assumed corrupt, not recoverable: reset and reinitialize.
	gitDir := filepath.Join(u.s.InstallDir, gogit.GitDirName)
	if _, statErr := os.Stat(gitDir); statErr == nil {
		logger.Warn(ctx, "Discarding partial tracking metadata")

		if err := os.RemoveAll(gitDir); err != nil {
			return fmt.Errorf("discard partial metadata: %w", err)
		}
	}

	repo, err := gogit.PlainInit(u.s.InstallDir, false)
	if err != nil {
		return fmt.Errorf("initialize tracking metadata: %w", err)
	}

	if _, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: gogit.DefaultRemoteName,
		URLs: []string{u.s.RemoteURL},
	}); err != nil {
		return fmt.Errorf("register remote: %w", err)
	}

	if err = u.fetch(ctx, repo); err != nil {
		return err
	}

	return u.checkoutBranch(repo, remoteHash)
}

// synchronize compares local and remote revisions and fast-forwards the
// working tree on divergence, preserving the user settings file.
func (u *synchronizer) synchronize(ctx context.Context, repo *gogit.Repository) error {
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("read local revision: %w", err)
	}

	local := head.Hash()

	remoteHash, err := u.remoteHead(ctx)
	if err != nil {
		return fmt.Errorf("reach remote: %w", err)
	}

	if local == remoteHash {
		logger.Infof(ctx, "Up to date at %s", abbrev(local))
		return nil
	}

	logger.Infof(ctx, "Update available: local %s, remote %s", abbrev(local), abbrev(remoteHash))

	if u.s.CheckOnly {
		return ErrUpdateAvailable
	}

	// The device is a managed appliance: the game must not hold assets open
	// while the tree is rewritten underneath it.
	if len(u.s.StopExecutables) > 0 {
		if err = common.TerminateByName(ctx, u.s.StopExecutables...); err != nil {
			return fmt.Errorf("stop running game: %w", err)
		}
	}

	restore, err := u.backupSettings(ctx)
	if err != nil {
		return err
	}

	unstash, err := u.stashPreserved(ctx)
	if err != nil {
		return err
	}

	syncErr := u.applyRemote(ctx, repo, remoteHash)

	// The preserved paths come back whether or not the update succeeded. On
	// failure the in-tree backup stays behind as recovery evidence.
	if err = unstash(ctx); err != nil {
		return err
	}

	if syncErr != nil {
		return syncErr
	}

	logger.Infof(ctx, "Synchronized to %s", abbrev(remoteHash))

	return restore(ctx)
}

// applyRemote fetches the tracked branch and rewrites the working tree to
// match it. The hard reset removes untracked files along with tracked
// modifications, so everything that must survive is stashed out of the tree
// before this runs. Untracked cleanup happens before the reset, while the
// status still lists the stray files.
func (u *synchronizer) applyRemote(ctx context.Context, repo *gogit.Repository, remoteHash plumbing.Hash) error {
	if err := u.fetch(ctx, repo); err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open working tree: %w", err)
	}

	if err = u.cleanUntracked(ctx, worktree); err != nil {
		return err
	}

	// Local modifications to tracked files are discarded on purpose.
	if err = worktree.Reset(&gogit.ResetOptions{
		Commit: remoteHash,
		Mode:   gogit.HardReset,
	}); err != nil {
		return fmt.Errorf("reset working tree: %w", err)
	}

	return nil
}

// remoteHead lists the remote and returns the revision of the tracked branch.
// Listing through an in-memory remote doubles as the reachability check that
// must pass before any destructive step.
func (u *synchronizer) remoteHead(ctx context.Context) (plumbing.Hash, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: gogit.DefaultRemoteName,
		URLs: []string{u.s.RemoteURL},
	})

	refs, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return plumbing.ZeroHash, err
	}

	want := plumbing.NewBranchReferenceName(u.s.Branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash(), nil
		}
	}

	return plumbing.ZeroHash, fmt.Errorf("%w: %s", errBranchNotFound, u.s.Branch)
}

// fetch pulls the tracked branch's full history from the remote.
func (u *synchronizer) fetch(ctx context.Context, repo *gogit.Repository) error {
	refspec := gitconfig.RefSpec(fmt.Sprintf(
		"+refs/heads/%s:refs/remotes/%s/%s",
		u.s.Branch, gogit.DefaultRemoteName, u.s.Branch,
	))

	err := repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: gogit.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Force:      true,
		Tags:       gogit.NoTags,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch remote branch: %w", err)
	}

	return nil
}

// checkoutBranch points the local branch and HEAD at the fetched revision and
// materializes the working tree, overwriting whatever was there.
func (u *synchronizer) checkoutBranch(repo *gogit.Repository, hash plumbing.Hash) error {
	branchRef := plumbing.NewBranchReferenceName(u.s.Branch)

	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, hash)); err != nil {
		return fmt.Errorf("set branch reference: %w", err)
	}

	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open working tree: %w", err)
	}

	if err = worktree.Reset(&gogit.ResetOptions{
		Commit: hash,
		Mode:   gogit.HardReset,
	}); err != nil {
		return fmt.Errorf("check out branch: %w", err)
	}

	return nil
}

// preservedPaths is the cleanup allow-list plus the settings file and its
// backup, which must survive no matter how KeepPaths is configured.
func (u *synchronizer) preservedPaths() []string {
	paths := make([]string, 0, len(u.s.KeepPaths)+2)
	seen := make(map[string]struct{}, len(u.s.KeepPaths)+2)

	add := func(path string) {
		if path == "" {
			return
		}

		if _, dup := seen[path]; dup {
			return
		}

		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	if u.s.SettingsFile != "" {
		add(u.s.SettingsFile)
		add(u.s.SettingsFile + u.s.BackupSuffix)
	}

	for _, keep := range u.s.KeepPaths {
		add(keep)
	}

	return paths
}

// stashPreserved moves the preserved paths into a staging directory next to
// the installation root, out of the hard reset's reach. The returned step
// moves them back, replacing anything the checkout materialized under the
// same names: the local copies win over the remote's.
func (u *synchronizer) stashPreserved(ctx context.Context) (func(context.Context) error, error) {
	preserved := u.preservedPaths()
	if len(preserved) == 0 {
		return func(context.Context) error { return nil }, nil
	}

	staging, err := os.MkdirTemp(filepath.Dir(u.s.InstallDir), stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	var entries []stashEntry

	for i, rel := range preserved {
		original := filepath.Join(u.s.InstallDir, filepath.FromSlash(rel))

		if _, statErr := os.Stat(original); statErr != nil {
			if errors.Is(statErr, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("probe preserved path %s: %w", rel, statErr)
		}

		logger.Debugf(ctx, "Setting aside %s", rel)

		staged := filepath.Join(staging, strconv.Itoa(i))
		if err = os.Rename(original, staged); err != nil {
			return nil, fmt.Errorf("set aside %s: %w", rel, err)
		}

		entries = append(entries, stashEntry{staged: staged, original: original})
	}

	unstash := func(ctx context.Context) error {
		for _, entry := range entries {
			logger.Debugf(ctx, "Bringing back %s", entry.original)

			if _, statErr := os.Stat(entry.original); statErr == nil {
				if err := os.RemoveAll(entry.original); err != nil {
					return fmt.Errorf("clear checked-out copy of %s: %w", entry.original, err)
				}
			}

			if err := os.MkdirAll(filepath.Dir(entry.original), 0o755); err != nil {
				return fmt.Errorf("recreate parent of %s: %w", entry.original, err)
			}

			if err := os.Rename(entry.staged, entry.original); err != nil {
				return fmt.Errorf("bring back %s: %w", entry.original, err)
			}
		}

		if err := os.RemoveAll(staging); err != nil {
			return fmt.Errorf("remove staging directory: %w", err)
		}

		return nil
	}

	return unstash, nil
}

// cleanUntracked removes untracked files and the directories their removal
// empties. It runs before the reset, while the status still lists the strays;
// the preserved paths are already out of the tree at that point.
func (u *synchronizer) cleanUntracked(ctx context.Context, worktree *gogit.Worktree) error {
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("read working tree status: %w", err)
	}

	for path, fileStatus := range status {
		if fileStatus.Worktree != gogit.Untracked {
			continue
		}

		if u.kept(path) {
			continue
		}

		logger.Debugf(ctx, "Removing untracked file %s", path)

		full := filepath.Join(u.s.InstallDir, filepath.FromSlash(path))
		if err = os.Remove(full); err != nil {
			return fmt.Errorf("remove untracked file %s: %w", path, err)
		}

		u.pruneEmptyDirs(filepath.Dir(full))
	}

	return nil
}

// pruneEmptyDirs removes directories left empty by untracked cleanup, walking
// up until a non-empty directory or the installation root.
func (u *synchronizer) pruneEmptyDirs(dir string) {
	root := filepath.Clean(u.s.InstallDir)

	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return
		}

		if os.Remove(dir) != nil {
			return
		}

		dir = filepath.Dir(dir)
	}
}

// kept reports whether an untracked path is on the cleanup allow-list.
// Paths are slash-separated and relative to the installation root.
func (u *synchronizer) kept(path string) bool {
	for _, keep := range u.s.KeepPaths {
		if path == keep || strings.HasPrefix(path, keep+"/") {
			return true
		}
	}

	return false
}

// backupSettings copies the preserved settings file aside and returns the
// restore step that closes the bracket. The bracket fully encloses every
// tree-mutating step; an interrupt in between leaves the backup on disk as
// recovery evidence. Failures on either side are fatal, never demoted to
// warnings: a silent failure here is silent user-data loss.
func (u *synchronizer) backupSettings(ctx context.Context) (func(context.Context) error, error) {
	settingsPath := filepath.Join(u.s.InstallDir, u.s.SettingsFile)
	backupPath := settingsPath + u.s.BackupSuffix

	if _, err := os.Stat(settingsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing to preserve; the restore step is a no-op.
			return func(context.Context) error { return nil }, nil
		}

		return nil, fmt.Errorf("probe settings file: %w", err)
	}

	logger.Debugf(ctx, "Preserving %s", u.s.SettingsFile)

	if err := copyFile(settingsPath, backupPath); err != nil {
		return nil, fmt.Errorf("back up settings file: %w", err)
	}

	restore := func(ctx context.Context) error {
		logger.Debugf(ctx, "Restoring %s", u.s.SettingsFile)

		if err := copyFile(backupPath, settingsPath); err != nil {
			return fmt.Errorf("restore settings file: %w", err)
		}

		if err := os.Remove(backupPath); err != nil {
			return fmt.Errorf("remove settings backup: %w", err)
		}

		return nil
	}

	return restore, nil
}

// abbrev shortens a revision for display.
func abbrev(hash plumbing.Hash) string {
	return hash.String()[:abbrevLength]
}

// copyFile copies src to dst by value, preserving the source's mode.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
