// Package cmd sketches the command-line surface at interface level
// only: the four subcommands (sort, dedup, localrealign, bpipe) as
// plain Go types a caller constructs and runs directly, with no
// argument-parsing library wired in, since argument parsing itself is
// an external collaborator outside this engine's core scope.
//
// Grounded on elprep's cmd/*.go: one file per subcommand, a flags
// struct, and a Run method that builds and executes a pipeline,
// trimmed to the four subcommands this spec names and rebuilt on top
// of package stage's graph runtime instead of elprep's sam/filters
// packages.
package cmd

import "github.com/readflow/engine/engine"

// CommonFlags are the options every subcommand shares: how many
// workers to run, where to spill temp files, and how verbosely to
// report progress.
type CommonFlags struct {
	Parallelism  int
	TempDir      string
	CompressTemp bool
	Verbose      bool
	NoThreads    bool
}

// Config builds the engine.Config this run's components are
// constructed with.
func (f CommonFlags) Config() engine.Config {
	return engine.Config{
		Parallelism:  f.Parallelism,
		TempDir:      f.TempDir,
		CompressTemp: f.CompressTemp,
		Verbose:      f.Verbose,
		NoThreads:    f.NoThreads,
	}
}
