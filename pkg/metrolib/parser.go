package metrolib

import (
	"fmt"
	"strconv"
	"strings"
)

const scenarioFields = 5

// ParseError describes a scenario line that could not be parsed.
type ParseError struct {
	Line   string
	Fields int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("line %q: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Parser turns scenario text into operation instances.
type Parser struct {
	reg *Registry
}

// NewParser returns a parser resolving operation types against reg.
func NewParser(reg *Registry) *Parser {
	return &Parser{reg: reg}
}

// ActiveLines returns the lines of text that describe operations,
// dropping blank lines and comments starting with '#' or '//'.
func ActiveLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// ParseSpec parses a single scenario line without constructing anything.
func (p *Parser) ParseSpec(line string) (OperationSpec, error) {
	parts := strings.Split(line, ";")
	if len(parts) != scenarioFields {
		return OperationSpec{}, &ParseError{
			Line:   line,
			Fields: len(parts),
			Reason: fmt.Sprintf("has %d parts but expected %d", len(parts), scenarioFields),
		}
	}
	iterations, err := strconv.Atoi(parts[0])
	if err != nil {
		return OperationSpec{}, &ParseError{Line: line, Fields: len(parts), Reason: fmt.Sprintf("iterations %q is not an integer", parts[0])}
	}
	if iterations < 1 {
		return OperationSpec{}, &ParseError{Line: line, Fields: len(parts), Reason: fmt.Sprintf("iterations must be at least 1, got %d", iterations)}
	}
	pause, err := ParsePause(parts[1])
	if err != nil {
		return OperationSpec{}, &ParseError{Line: line, Fields: len(parts), Err: err}
	}
	if p.reg != nil && !p.reg.Has(parts[3]) {
		return OperationSpec{}, &ParseError{Line: line, Fields: len(parts), Err: fmt.Errorf("%w: %q", ErrUnknownOperation, parts[3])}
	}
	args, err := ParseArgs(parts[4])
	if err != nil {
		return OperationSpec{}, &ParseError{Line: line, Fields: len(parts), Err: err}
	}
	return OperationSpec{
		Iterations: iterations,
		Pause:      pause,
		Identifier: parts[2],
		Type:       parts[3],
		Args:       args,
	}, nil
}

// ParseLine parses one line and constructs one instance per iteration.
func (p *Parser) ParseLine(line string) ([]Instance, error) {
	spec, err := p.ParseSpec(line)
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, spec.Iterations)
	for i := 0; i < spec.Iterations; i++ {
		op, err := p.reg.Create(spec.Type, spec.Identifier, spec.Pause, spec.Args)
		if err != nil {
			return nil, &ParseError{Line: line, Fields: scenarioFields, Err: err}
		}
		out = append(out, Instance{Spec: spec.Single(), Op: op})
	}
	return out, nil
}

// ParseOne parses a line that must describe exactly one iteration.
func (p *Parser) ParseOne(line string) (Instance, error) {
	insts, err := p.ParseLine(line)
	if err != nil {
		return Instance{}, err
	}
	if len(insts) != 1 {
		return Instance{}, &ParseError{Line: line, Fields: scenarioFields, Reason: fmt.Sprintf("expected a single iteration, got %d", len(insts))}
	}
	return insts[0], nil
}

// Parse parses a whole scenario into its ordered instance list.
func (p *Parser) Parse(text string) ([]Instance, error) {
	var out []Instance
	for _, line := range ActiveLines(text) {
		insts, err := p.ParseLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, insts...)
	}
	return out, nil
}

// ExpandLines validates a scenario and returns one canonical line per
// instance, each with a single iteration. Constructing an instance from
// line i of the result yields the i-th instance of Parse.
func (p *Parser) ExpandLines(text string) ([]string, error) {
	var out []string
	for _, line := range ActiveLines(text) {
		spec, err := p.ParseSpec(line)
		if err != nil {
			return nil, err
		}
		if p.reg != nil {
			if _, err := p.reg.Create(spec.Type, spec.Identifier, spec.Pause, spec.Args); err != nil {
				return nil, &ParseError{Line: line, Fields: scenarioFields, Err: err}
			}
		}
		single := spec.Single().Line()
		for i := 0; i < spec.Iterations; i++ {
			out = append(out, single)
		}
	}
	return out, nil
}
