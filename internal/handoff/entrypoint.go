package handoff

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEntryPointNotFound is returned when no candidate can be launched.
var ErrEntryPointNotFound = errors.New("claim entry point not found")

// EntryPoint is a resolved claim workflow: an executable, or a script run
// through an interpreter.
type EntryPoint struct {
	Path        string
	Interpreter string
}

// Command returns the program and arguments that launch the entry point with
// the given positional arguments.
func (e EntryPoint) Command(args ...string) (string, []string) {
	if e.Interpreter == "" {
		return e.Path, args
	}
	return e.Interpreter, append([]string{e.Path}, args...)
}

// ResolveEntryPoint probes candidates in order. A regular file with an
// executable bit runs directly; any other regular file needs interpreter.
func ResolveEntryPoint(candidates []string, interpreter string) (EntryPoint, error) {
	interpreter = strings.TrimSpace(interpreter)
	var probed []string
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		probed = append(probed, c)

		info, err := os.Stat(c)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.Mode().Perm()&0o111 != 0 {
			return EntryPoint{Path: c}, nil
		}
		if interpreter != "" {
			return EntryPoint{Path: c, Interpreter: interpreter}, nil
		}
	}
	return EntryPoint{}, fmt.Errorf("%w: probed %s", ErrEntryPointNotFound, strings.Join(probed, ", "))
}
