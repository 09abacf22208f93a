package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/assayhq/assay/internal/lockfile"
	"github.com/assayhq/assay/internal/observability/logging"
	"github.com/assayhq/assay/internal/reason"
	"github.com/assayhq/assay/internal/registry"
	"github.com/assayhq/assay/internal/registry/byos"
	"github.com/spf13/cobra"
)

var (
	lockfilePathFlag string
	lockPackDirFlag  string
	lockUpdateFlag   bool
)

func GetLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <pack>[@version] [<pack>[@version] ...]",
		Short: "Resolve and pin packs into a lockfile",
		Long: `lock resolves each named pack (by bundled/local name, name@version
against a registry, or a gs://, s3://, az:// BYOS reference) and records
its canonical digest in the lockfile. By default (--locked mode implied
when an entry is already pinned) a digest mismatch against an existing
pin is a hard failure; pass --update to allow new or changed pins to be
written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runLock,
	}
	cmd.Flags().StringVar(&lockfilePathFlag, "lockfile", "assay.lock.yaml", "path to the lockfile")
	cmd.Flags().StringVar(&lockPackDirFlag, "pack-dir", "", "directory of bundled pack YAML files, keyed by <name>.yaml")
	cmd.Flags().BoolVar(&lockUpdateFlag, "update", false, "allow unpinned or changed packs to be written to the lockfile")
	return cmd
}

func runLock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.From(ctx)

	bundled, err := loadBundledPacks(lockPackDirFlag)
	if err != nil {
		return exitErr(reason.ExitConfigError, err)
	}

	resolver := &registry.Resolver{
		Bundled: bundled,
		BYOS:    newBYOSFetcher(ctx, logger),
	}

	mode := lockfile.ModeLocked
	if lockUpdateFlag {
		mode = lockfile.ModeUpdate
	}
	manager := lockfile.NewManager(resolver, nil)

	existing, err := lockfile.Load(lockfilePathFlag)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return exitErr(reason.ExitConfigError, fmt.Errorf("loading lockfile %s: %w", lockfilePathFlag, err))
		}
		existing = nil
	}

	entries := make([]lockfile.LockedPack, 0, len(args))
	for _, arg := range args {
		name, version, _ := strings.Cut(arg, "@")
		_, entry, err := manager.Resolve(ctx, existing, name, version, mode)
		if err != nil {
			return exitErr(reason.ExitConfigError, err)
		}
		entries = append(entries, entry)
		if logger != nil {
			logger.Info("lock", "pinned pack", "name", entry.Name, "version", entry.Version, "digest", entry.Digest)
		}
	}

	updated := lockfile.New(entries)
	if err := updated.Save(lockfilePathFlag); err != nil {
		return exitErr(reason.ExitInfraError, fmt.Errorf("writing lockfile %s: %w", lockfilePathFlag, err))
	}
	return nil
}

func loadBundledPacks(dir string) (map[string][]byte, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading pack directory %s: %w", dir, err)
	}
	bundled := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading pack %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".yaml"), ".yml")
		bundled[name] = data
	}
	return bundled, nil
}

// newBYOSFetcher builds the best-effort BYOS dispatcher for gs:// and
// s3:// pack references; a backend that fails to initialize (e.g. no
// ambient cloud credentials) is simply left unregistered rather than
// failing the whole command, since most lock runs resolve only bundled
// or registry packs.
func newBYOSFetcher(ctx context.Context, logger logging.Logger) *byos.MultiFetcher {
	var gcs *byos.GCSFetcher
	if f, err := byos.NewGCSFetcher(ctx); err == nil {
		gcs = f
	} else if logger != nil {
		logger.Warn("lock", "gcs BYOS backend unavailable", "error", err.Error())
	}
	s3, err := byos.NewS3Fetcher(ctx, byos.S3FetcherConfig{})
	if err != nil {
		if logger != nil {
			logger.Warn("lock", "s3 BYOS backend unavailable", "error", err.Error())
		}
		s3 = nil
	}
	var gcsFetcher byos.Fetcher
	if gcs != nil {
		gcsFetcher = gcs
	}
	var s3Fetcher byos.Fetcher
	if s3 != nil {
		s3Fetcher = s3
	}
	return byos.NewMultiFetcher(gcsFetcher, s3Fetcher)
}
