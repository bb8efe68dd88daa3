package api

import (
	"errors"

	"github.com/energylab/metronom/common"
)

var ErrNothingToValidate = errors.New("either a scenario name or text is required")

// Scenarios lists the stored scenarios with their expanded operation
// count. Scenarios that do not parse carry the error instead.
func (a *Api) Scenarios() ([]common.ScenarioInfo, error) {
	names, err := a.scenarios.List()
	if err != nil {
		return nil, err
	}
	out := make([]common.ScenarioInfo, 0, len(names))
	for _, name := range names {
		info := common.ScenarioInfo{Name: name}
		text, err := a.scenarios.Read(name)
		if err == nil {
			var lines []string
			lines, err = a.expand(text)
			info.Operations = len(lines)
		}
		if err != nil {
			info.Error = err.Error()
		}
		out = append(out, info)
	}
	return out, nil
}

// Validate expands a stored scenario or the given text into one line
// per operation instance.
func (a *Api) Validate(p common.ValidateParams) (common.ValidateResult, error) {
	text := p.Text
	if text == "" {
		if p.Name == "" {
			return common.ValidateResult{}, ErrNothingToValidate
		}
		var err error
		if text, err = a.scenarios.Read(p.Name); err != nil {
			return common.ValidateResult{}, err
		}
	}
	lines, err := a.expand(text)
	if err != nil {
		return common.ValidateResult{}, err
	}
	return common.ValidateResult{Operations: len(lines), Lines: lines}, nil
}
