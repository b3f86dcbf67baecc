package main

import (
	"github.com/Sherlock-Holo/sparsefd/cmd"
	"github.com/Sherlock-Holo/sparsefd/pkg/demo"
	"github.com/Sherlock-Holo/sparsefd/pkg/memfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:     "sparsefd",
		Short:   "sparsefd shows how file offsets and sparse holes behave",
		Version: cmd.Version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	holeCmd = &cobra.Command{
		Use:   "hole [file]",
		Short: "write past end-of-file and walk the hole it leaves",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return demo.Hole(config(), fileArg(args))
		},
	}

	offsetCmd = &cobra.Command{
		Use:   "offset [file]",
		Short: "compare write offsets in append and read-write mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return demo.Offset(config(), fileArg(args))
		},
	}

	layoutCmd = &cobra.Command{
		Use:   "layout <file>...",
		Short: "print how much of each file is data and how much is holes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return demo.Layout(config(), args...)
		},
	}

	inheritCmd = &cobra.Command{
		Use:   "inherit [file]",
		Short: "show and clear the inheritable flag of a handle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return demo.Inherit(config(), fileArg(args))
		},
	}

	appendCmd = &cobra.Command{
		Use:   "append [file]",
		Short: "append records concurrently and check none are torn",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return demo.Append(config(), fileArg(args), writers, records)
		},
	}

	mountCmd = &cobra.Command{
		Use:   "mount <mount-point> [file]...",
		Short: "mount a byte-granular sparse in-memory filesystem",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg := memfs.Config{
				MountPoint: args[0],
				Debug:      debug,
				Files:      args[1:],
				Seed:       seed,
			}

			return memfs.Run(cfg)
		},
	}

	verbose bool
	debug   bool
	dir     string
	memory  bool
	seed    string
	writers int
	records int
)

const defaultFile = "text.txt"

func fileArg(args []string) string {
	if len(args) == 0 {
		return defaultFile
	}

	return args[0]
}

func config() demo.Config {
	return demo.Config{
		Dir:    dir,
		Memory: memory,
		Seed:   seed,
	}
}

func execute() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose log")
	rootCmd.PersistentFlags().StringVarP(&dir, "dir", "", ".", "directory file names resolve against")
	rootCmd.PersistentFlags().BoolVarP(&memory, "memory", "", false, "use an in-memory filesystem instead of --dir")
	rootCmd.PersistentFlags().StringVarP(&seed, "seed", "", "", "content written to files that do not exist yet")

	mountCmd.Flags().BoolVarP(&debug, "debug", "d", false, "debug fuse log")

	appendCmd.Flags().IntVarP(&writers, "writers", "", 4, "concurrent appenders")
	appendCmd.Flags().IntVarP(&records, "records", "", 1000, "records per appender")

	rootCmd.AddCommand(holeCmd, offsetCmd, layoutCmd, inheritCmd, appendCmd, mountCmd)

	rootCmd.InitDefaultVersionFlag()

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
