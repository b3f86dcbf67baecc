package memfs

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/Sherlock-Holo/sparsefd/internal/memfs"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	errors "golang.org/x/xerrors"
)

type Config struct {
	MountPoint string
	Debug      bool

	// Files are created before mounting, each holding Seed.
	Files []string
	Seed  string
}

func newFS(cfg Config) (*memfs.FS, error) {
	fsys := memfs.New(&fuse.Owner{
		Uid: uint32(os.Getuid()),
		Gid: uint32(os.Getgid()),
	})

	for _, name := range cfg.Files {
		if _, err := fsys.Create(name, 0644, []byte(cfg.Seed)); err != nil {
			return nil, errors.Errorf("create %s failed: %w", name, err)
		}
	}

	return fsys, nil
}

func newOptions(cfg Config) *fs.Options {
	oneSecond := time.Second

	options := new(fs.Options)
	options.Debug = cfg.Debug
	options.FsName = "sparsefd"
	options.Name = "memfs"
	options.EntryTimeout = &oneSecond
	options.AttrTimeout = &oneSecond
	options.DisableXAttrs = true
	options.MaxReadAhead = 128 * 1024

	// allow mount point is not empty
	options.Options = append(options.Options, "nonempty")

	return options
}

// Run mounts a byte-granular sparse in-memory filesystem on cfg.MountPoint
// and serves it until interrupted or unmounted.
func Run(cfg Config) error {
	fsys, err := newFS(cfg)
	if err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt)
	defer signal.Stop(signalCh)

	server, err := fs.Mount(cfg.MountPoint, fsys.Root(), newOptions(cfg))
	if err != nil {
		return errors.Errorf("mount memfs on %s failed: %w", cfg.MountPoint, err)
	}

	log.Infof("memfs mounted on %s with %d files", cfg.MountPoint, len(cfg.Files))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		server.Wait()
		cancel()
	}()

	select {
	case <-signalCh:
		if err := server.Unmount(); err != nil {
			return errors.Errorf("unmount %s failed: %w", cfg.MountPoint, err)
		}

	case <-ctx.Done():
	}

	log.Debugf("memfs on %s stopped, %d descriptions still open", cfg.MountPoint, fsys.OpenDescriptions())

	return nil
}
