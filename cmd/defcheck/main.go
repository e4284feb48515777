// Command defcheck validates game definition documents and prints every
// problem found.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/projectcards/project-game-server/internal/catalog"
	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
)

func main() {
	strict := flag.Bool("strict", false, "treat warnings as errors")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: defcheck [-strict] FILE...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(os.Stdout, flag.Args(), *strict))
}

// run checks each path and returns the process exit code.
func run(w io.Writer, paths []string, strict bool) int {
	code := 0
	for _, path := range paths {
		if !check(w, path, strict) {
			code = 1
		}
	}
	return code
}

func check(w io.Writer, path string, strict bool) bool {
	def, err := definition.Load(path)
	if err != nil {
		fmt.Fprintf(w, "%s: invalid\n", path)
		details := apperrors.DetailsOf(err)
		if len(details) == 0 {
			details = []string{err.Error()}
		}
		for _, d := range details {
			fmt.Fprintf(w, "  error: %s\n", d)
		}
		return false
	}

	fmt.Fprintf(w, "%s: ok (%q, %d phases, %d actions, %d events, %d quizzes)\n",
		path,
		def.Info.Title,
		len(def.Phases.Names()),
		len(def.Catalog.ByKind(catalog.KindAction)),
		len(def.Catalog.ByKind(catalog.KindEvent)),
		len(def.Catalog.ByKind(catalog.KindQuiz)),
	)
	for _, warning := range def.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	return !strict || len(def.Warnings) == 0
}
