package metrocli

import (
	"time"

	"github.com/energylab/metronom/common"
	"github.com/energylab/metronom/pkg/metrolib"
)

const callTimeout = 30 * time.Second

func (c *Client) GetDaemonVersion() (*common.VersionResult, error) {
	var v common.VersionResult
	if err := c.call(common.MethodVersion, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// StartRun starts a stored scenario and returns the new run id.
func (c *Client) StartRun(p common.StartRunParams) (*common.StartRunResult, error) {
	var res common.StartRunResult
	if err := c.call(common.MethodRunStart, p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) StopRun(runID string) error {
	return c.call(common.MethodRunStop, common.RunIDParams{RunID: runID}, nil)
}

func (c *Client) Status(runID string) (*metrolib.RunStatus, error) {
	var s metrolib.RunStatus
	if err := c.call(common.MethodRunStatus, common.RunIDParams{RunID: runID}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListRuns() ([]metrolib.RunStatus, error) {
	var res common.ListRunsResult
	if err := c.call(common.MethodRunList, nil, &res); err != nil {
		return nil, err
	}
	return res.Runs, nil
}

func (c *Client) ListScenarios() ([]common.ScenarioInfo, error) {
	var res common.ListScenariosResult
	if err := c.call(common.MethodScenarioList, nil, &res); err != nil {
		return nil, err
	}
	return res.Scenarios, nil
}

// Validate expands a stored scenario by name or raw scenario text.
func (c *Client) Validate(p common.ValidateParams) (*common.ValidateResult, error) {
	var res common.ValidateResult
	if err := c.call(common.MethodScenarioValidate, p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
