// readflow/engine's command-line entry point. This binary is a thin
// sketch, not a finished tool: it dispatches to one of the four
// subcommands package cmd names and prints each one's help text, since
// argument parsing is explicitly out of this engine's core scope -- a
// real frontend would parse os.Args into the corresponding cmd.*Flags
// value and call its Run method directly.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/readflow/engine/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: sort, dedup, localrealign, bpipe")
	fmt.Fprint(os.Stderr, cmd.SortHelp)
	fmt.Fprint(os.Stderr, cmd.DedupHelp)
	fmt.Fprint(os.Stderr, cmd.LocalRealignHelp)
	fmt.Fprint(os.Stderr, cmd.BpipeHelp)
}

func main() {
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		printHelp()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "sort":
		fmt.Fprint(os.Stderr, cmd.SortHelp)
	case "dedup":
		fmt.Fprint(os.Stderr, cmd.DedupHelp)
	case "localrealign":
		fmt.Fprint(os.Stderr, cmd.LocalRealignHelp)
	case "bpipe":
		fmt.Fprint(os.Stderr, cmd.BpipeHelp)
	default:
		log.Printf("Unknown command %q.", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}
