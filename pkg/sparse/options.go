package sparse

import (
	"github.com/Sherlock-Holo/sparsefd/internal/fdesc"
	"github.com/Sherlock-Holo/sparsefd/internal/kernel"
	log "github.com/sirupsen/logrus"
)

// Resolver turns names into handles. It is the explicit path-resolution
// context every Open goes through.
type Resolver = fdesc.Resolver

// Handle is the descriptor an Accessor owns.
type Handle = fdesc.Handle

// Dir is a Resolver rooted at a directory of the host filesystem.
type Dir struct {
	*kernel.Root
}

// OpenDir opens path as a resolution root. Close it after the accessors
// opened through it are no longer needed to resolve new names.
func OpenDir(path string) (*Dir, error) {
	root, err := kernel.OpenRoot(path)
	if err != nil {
		return nil, newError("open", path, err)
	}

	return &Dir{Root: root}, nil
}

type options struct {
	inheritable bool
	logger      log.FieldLogger
}

type Option func(*options)

// WithInheritable sets whether the handle survives exec. The default is
// false: handles are close-on-exec.
func WithInheritable(inheritable bool) Option {
	return func(o *options) {
		o.inheritable = inheritable
	}
}

// WithLogger sets the logger debug output goes to. The default is the
// standard logrus logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
