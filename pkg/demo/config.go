package demo

import (
	"io"
	"os"
	"path/filepath"

	"github.com/Sherlock-Holo/sparsefd/internal/memfs"
	"github.com/Sherlock-Holo/sparsefd/pkg/sparse"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	errors "golang.org/x/xerrors"
)

type Config struct {
	// Dir is the directory names resolve against.
	Dir string
	// Memory runs against an in-memory filesystem instead of Dir.
	Memory bool
	// Seed is written to files that do not exist yet. Empty means missing
	// files are an error.
	Seed string
	Out  io.Writer
}

func (cfg Config) out() io.Writer {
	if cfg.Out == nil {
		return os.Stdout
	}

	return cfg.Out
}

// resolver returns the resolution root for names, seeding them first if
// asked to. The returned func releases the root.
func (cfg Config) resolver(names ...string) (sparse.Resolver, func(), error) {
	if cfg.Memory {
		fsys := memfs.New(&fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		})

		for _, name := range names {
			if _, err := fsys.Create(name, 0644, []byte(cfg.Seed)); err != nil {
				return nil, nil, errors.Errorf("seed %s failed: %w", name, err)
			}
		}

		log.Debugf("seeded %d in-memory files", len(names))

		return fsys, func() {}, nil
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	if cfg.Seed != "" {
		for _, name := range names {
			if err := seed(filepath.Join(dir, name), cfg.Seed); err != nil {
				return nil, nil, err
			}
		}
	}

	root, err := sparse.OpenDir(dir)
	if err != nil {
		return nil, nil, errors.Errorf("open directory %s failed: %w", dir, err)
	}

	return root, func() {
		if err := root.Close(); err != nil {
			log.Warnf("%+v", errors.Errorf("close directory %s failed: %w", dir, err))
		}
	}, nil
}

func seed(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	switch {
	case errors.Is(err, os.ErrExist):
		return nil

	case err != nil:
		return errors.Errorf("seed %s failed: %w", path, err)
	}

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return errors.Errorf("seed %s failed: %w", path, err)
	}

	log.Debugf("seeded %s", path)

	return f.Close()
}
