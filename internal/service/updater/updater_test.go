package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// fixtureBranch is the branch name PlainInit creates by default.
const fixtureBranch = "master"

// fixtureRemote is a local upstream repository used in place of the real one.
type fixtureRemote struct {
	dir  string
	repo *gogit.Repository
}

// newFixtureRemote creates an upstream repository with an initial commit
// containing the game tree.
func newFixtureRemote(t *testing.T) *fixtureRemote {
	t.Helper()

	dir := t.TempDir()

	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	remote := &fixtureRemote{dir: dir, repo: repo}
	remote.commit(t, map[string]string{
		"chessgame.py":    "print('chess')\n",
		"checkersgame.py": "print('checkers')\n",
		"lib/leds.py":     "BRIGHTNESS = 20\n",
	})

	return remote
}

// commit writes the given files into the fixture worktree and commits them.
func (r *fixtureRemote) commit(t *testing.T, files map[string]string) {
	t.Helper()

	worktree, err := r.repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(r.dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, err = worktree.Add(name)
		require.NoError(t, err)
	}

	_, err = worktree.Commit("update", &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "fixture",
			Email: "fixture@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
}

// url returns the repository path usable as a remote URL. The filesystem
// transport wants the metadata directory itself, not the worktree.
func (r *fixtureRemote) url() string {
	return filepath.Join(r.dir, gogit.GitDirName)
}

// head returns the current revision of the fixture branch.
func (r *fixtureRemote) head(t *testing.T) string {
	t.Helper()

	ref, err := r.repo.Head()
	require.NoError(t, err)

	return ref.Hash().String()
}

// settingsFor builds synchronizer settings pointed at the fixture.
func settingsFor(remote *fixtureRemote, installDir string) *Settings {
	return &Settings{
		InstallDir:   installDir,
		RemoteURL:    remote.url(),
		Branch:       fixtureBranch,
		SettingsFile: "settings.json",
		BackupSuffix: ".backup",
		KeepPaths:    []string{"settings.json", "settings.json.backup", "venv", ".vscode"},
	}
}

// localHead reads the local revision of an installation.
func localHead(t *testing.T, installDir string) string {
	t.Helper()

	repo, err := gogit.PlainOpen(installDir)
	require.NoError(t, err)

	ref, err := repo.Head()
	require.NoError(t, err)

	return ref.Hash().String()
}

// TestInitializePreservesSettings covers the untracked-to-tracked transition:
// the installation ends up matching the remote branch exactly except for the
// settings file, which stays byte-identical.
func TestInitializePreservesSettings(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()

	settingsContent := []byte(`{"brightness": 42}`)
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "settings.json"), settingsContent, 0o644))

	require.NoError(t, Run(context.Background(), settingsFor(remote, installDir)))

	// Tracked now, at the remote revision.
	require.Equal(t, remote.head(t), localHead(t, installDir))

	// Remote tree materialized.
	_, err := os.Stat(filepath.Join(installDir, "chessgame.py"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(installDir, "lib", "leds.py"))
	require.NoError(t, err)

	// Settings byte-identical, backup gone after the bracket closed.
	got, err := os.ReadFile(filepath.Join(installDir, "settings.json"))
	require.NoError(t, err)
	require.Equal(t, settingsContent, got)

	_, err = os.Stat(filepath.Join(installDir, "settings.json.backup"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestUpToDateNoMutation ensures a tracked installation at the remote
// revision is left entirely alone.
func TestUpToDateNoMutation(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()
	settings := settingsFor(remote, installDir)

	require.NoError(t, Run(context.Background(), settings))

	before := localHead(t, installDir)

	require.NoError(t, Run(context.Background(), settings))

	require.Equal(t, before, localHead(t, installDir))

	_, err := os.Stat(filepath.Join(installDir, "settings.json.backup"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestCheckOnlyNeverMutates ensures a divergent check-only run reports the
// pending update through its error and changes nothing on disk.
func TestCheckOnlyNeverMutates(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()
	settings := settingsFor(remote, installDir)

	require.NoError(t, Run(context.Background(), settings))

	before := localHead(t, installDir)

	remote.commit(t, map[string]string{"lib/leds.py": "BRIGHTNESS = 60\n"})

	checkOnly := *settings
	checkOnly.CheckOnly = true

	err := Run(context.Background(), &checkOnly)
	require.ErrorIs(t, err, ErrUpdateAvailable)

	// Local revision unchanged, new content not applied.
	require.Equal(t, before, localHead(t, installDir))

	got, readErr := os.ReadFile(filepath.Join(installDir, "lib", "leds.py"))
	require.NoError(t, readErr)
	require.Equal(t, "BRIGHTNESS = 20\n", string(got))
}

// TestCheckOnlyUpToDate ensures check-only succeeds silently when nothing changed.
func TestCheckOnlyUpToDate(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()
	settings := settingsFor(remote, installDir)

	require.NoError(t, Run(context.Background(), settings))

	checkOnly := *settings
	checkOnly.CheckOnly = true

	require.NoError(t, Run(context.Background(), &checkOnly))
}

// TestCheckOnlyUntracked ensures an untracked installation reports a pending
// update in check-only mode without creating tracking metadata.
func TestCheckOnlyUntracked(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()

	settings := settingsFor(remote, installDir)
	settings.CheckOnly = true

	err := Run(context.Background(), settings)
	require.ErrorIs(t, err, ErrUpdateAvailable)

	_, err = os.Stat(filepath.Join(installDir, ".git"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestDivergentSync covers the full divergent path: tracked files updated,
// stray untracked files removed, allow-listed paths and settings preserved.
func TestDivergentSync(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()
	settings := settingsFor(remote, installDir)

	require.NoError(t, Run(context.Background(), settings))

	// Local state an appliance accumulates between updates.
	settingsContent := []byte(`{"brightness": 77}`)
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "settings.json"), settingsContent, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "stray.log"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(installDir, "logs", "run"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "logs", "run", "out.log"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(installDir, "venv", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "venv", "bin", "python3"), []byte("#!"), 0o755))

	// Local modification to a tracked file is discarded by design.
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "lib", "leds.py"), []byte("tampered\n"), 0o644))

	remote.commit(t, map[string]string{
		"lib/leds.py":  "BRIGHTNESS = 60\n",
		"lib/sound.py": "VOLUME = 5\n",
	})

	require.NoError(t, Run(context.Background(), settings))

	require.Equal(t, remote.head(t), localHead(t, installDir))

	got, err := os.ReadFile(filepath.Join(installDir, "lib", "leds.py"))
	require.NoError(t, err)
	require.Equal(t, "BRIGHTNESS = 60\n", string(got))

	_, err = os.Stat(filepath.Join(installDir, "lib", "sound.py"))
	require.NoError(t, err)

	// Stray file and stray directory removed, allow-listed paths kept.
	_, err = os.Stat(filepath.Join(installDir, "stray.log"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(installDir, "logs"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(installDir, "venv", "bin", "python3"))
	require.NoError(t, err)

	got, err = os.ReadFile(filepath.Join(installDir, "settings.json"))
	require.NoError(t, err)
	require.Equal(t, settingsContent, got)
}

// TestLocalSettingsWinOverTracked covers the case where the remote itself
// tracks a version of the settings file: the local copy survives both the
// initial checkout and a later divergent sync, byte for byte.
func TestLocalSettingsWinOverTracked(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	remote.commit(t, map[string]string{"settings.json": `{"brightness": 10}`})

	installDir := t.TempDir()

	local := []byte(`{"brightness": 42}`)
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "settings.json"), local, 0o644))

	settings := settingsFor(remote, installDir)

	require.NoError(t, Run(context.Background(), settings))

	got, err := os.ReadFile(filepath.Join(installDir, "settings.json"))
	require.NoError(t, err)
	require.Equal(t, local, got)

	// The remote moves its own copy of the settings; the local one still wins.
	remote.commit(t, map[string]string{"settings.json": `{"brightness": 11}`})

	require.NoError(t, Run(context.Background(), settings))

	require.Equal(t, remote.head(t), localHead(t, installDir))

	got, err = os.ReadFile(filepath.Join(installDir, "settings.json"))
	require.NoError(t, err)
	require.Equal(t, local, got)
}

// TestInitializeDiscardsPartialMetadata ensures a corrupt .git directory is
// reset and reinitialized rather than recovered.
func TestInitializeDiscardsPartialMetadata(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()

	// A .git directory with no usable contents.
	require.NoError(t, os.MkdirAll(filepath.Join(installDir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(installDir, ".git", "HEAD"), []byte("garbage"), 0o644))

	require.NoError(t, Run(context.Background(), settingsFor(remote, installDir)))

	require.Equal(t, remote.head(t), localHead(t, installDir))
}

// TestReinitializeWithoutRemote ensures metadata with a resolvable revision
// but no configured remote counts as partial and is discarded.
func TestReinitializeWithoutRemote(t *testing.T) {
	t.Parallel()

	remote := newFixtureRemote(t)
	installDir := t.TempDir()

	orphan, err := gogit.PlainInit(installDir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "orphan.py"), []byte("pass\n"), 0o644))

	worktree, err := orphan.Worktree()
	require.NoError(t, err)

	_, err = worktree.Add("orphan.py")
	require.NoError(t, err)

	_, err = worktree.Commit("orphan", &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "fixture",
			Email: "fixture@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	require.NoError(t, Run(context.Background(), settingsFor(remote, installDir)))

	require.Equal(t, remote.head(t), localHead(t, installDir))
}

// TestUnreachableRemoteNoMutation ensures a fetch failure leaves the tree alone.
func TestUnreachableRemoteNoMutation(t *testing.T) {
	t.Parallel()

	installDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(installDir, "settings.json"), []byte("{}"), 0o644))

	settings := &Settings{
		InstallDir:   installDir,
		RemoteURL:    filepath.Join(t.TempDir(), "no-such-repo"),
		Branch:       fixtureBranch,
		SettingsFile: "settings.json",
		BackupSuffix: ".backup",
	}

	err := Run(context.Background(), settings)
	require.Error(t, err)

	// No tracking metadata created, no backup left behind.
	_, err = os.Stat(filepath.Join(installDir, ".git"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(installDir, "settings.json.backup"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
