package metrolib

import (
	"strconv"
	"strings"
)

// OperationSpec is one parsed scenario line.
type OperationSpec struct {
	Iterations int
	Pause      Pause
	Identifier string
	Type       string
	Args       Args
}

// Line renders the spec in scenario syntax. Arguments are written in
// sorted key order, so equal specs render to equal lines.
func (s OperationSpec) Line() string {
	return strings.Join([]string{
		strconv.Itoa(s.Iterations),
		s.Pause.String(),
		s.Identifier,
		s.Type,
		s.Args.String(),
	}, ";")
}

// Single returns a copy of the spec with one iteration.
func (s OperationSpec) Single() OperationSpec {
	s.Iterations = 1
	return s
}
