package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jscraik/firefly-narrative/internal/paths"
	"github.com/jscraik/firefly-narrative/internal/store"
)

// resolveRepoID opens the shared database just long enough to upsert
// repoRoot's Repo row and return its id.
func resolveRepoID(repoRoot string) (int64, error) {
	dbPath, err := paths.DatabasePath()
	if err != nil {
		return 0, err
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return 0, fmt.Errorf("open db: %w", err)
	}
	defer db.Close() //nolint:errcheck,gosec // best-effort close

	repo, err := db.ResolveRepo(repoRoot)
	if err != nil {
		return 0, err
	}
	return repo.ID, nil
}

// executablePath returns the path of the currently running binary.
func executablePath() (string, error) {
	return os.Executable()
}

// copyExecutable copies src to dst with executable permissions, used to
// seed <app_data_dir>/<bundle-id>/narrative-cli so hook shims keep a
// stable, self-contained invocation target.
func copyExecutable(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // src is os.Executable()'s own result
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755) //nolint:gosec // hook shim target must be executable
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
