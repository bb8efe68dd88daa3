package cmd

const DESCRIPTION = `
metronom schedules the operations of an energy-measurement scenario
with millisecond-precise pauses, logs when each one started and ended,
and traces the run for alignment with external power measurements.
Runs are hosted by a background daemon or executed in the foreground.
`

const (
	RunDescription = `The run command executes a scenario in the foreground with
the continuous coordinator and shows its progress. With --usb the run
first performs the signaller handshake and synchronization edges.
The command returns when interrupted with Ctrl+C.

Example:
        metronom run cpu.scenario
        metronom run --usb ./scenarios/network.scenario

`
	StartDescription = `The start command asks the daemon to start a stored scenario.
Runs are resumable unless --mode continuous is given, and may be
delayed to a wall time, by a duration or to the next occurrence of a
5-field cron expression.

Example:
        metronom start cpu
        metronom start --start-in 30m --mode continuous cpu
        metronom start --cron "0 3 * * *" nightly

`
	StopDescription = `The stop command stops an active run or cancels a delayed one.

Example:
        metronom stop <run id>

`
	StatusDescription = `The status command lists the runs known to the daemon, or
the details of a single run.

Example:
        metronom status
        metronom status <run id>

`
	ValidateDescription = `The validate command parses a scenario file and prints the
canonical operation lines it expands to.

Example:
        metronom validate cpu.scenario

`
	ScenariosDescription = `The scenarios command manages the scenarios known to the daemon.
Without a subcommand it lists them with their operation counts.

Example:
        metronom scenarios
        metronom scenarios add ./cpu.scenario
        metronom scenarios remove cpu

`
	SecretDescription = `The secret command stores named secrets in the encrypted
secret store: the reply server secret used by network operations,
the "rpc" bearer token of the HTTP JSON-RPC endpoint and the
passwords referenced by ftp and sftp operations. Values are read
from standard input.

Example:
        echo -n s3cret | metronom secret set reply

`
)
