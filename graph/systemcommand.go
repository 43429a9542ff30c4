package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/grailbio/respire/errors"
	pkgerrors "github.com/pkg/errors"
)

// SystemCommandParams describes one "sc" directive's resolved
// parameters. Inputs here is for reporting only (e.g. an activity
// log): the node itself is driven by the FileInfoNodeOutputs supplied
// separately to NewSystemCommandNode, since those must already be
// resolved against the shared NodeStore.
type SystemCommandParams struct {
	Command     string
	Inputs      []string
	Outputs     []string
	SoftOutputs []string
	DepsFile    *string
	StdoutFile  *string
	StderrFile  *string
	StdinFile   *string
}

// CommandRunner executes a shell command, optionally redirecting its
// standard streams to/from files. exitCode is the process's own exit
// status and is only meaningful when err is nil: err is reserved for
// failures to even run the command (a redirect file that couldn't be
// opened, a shell that couldn't be started), which the caller reports
// distinctly from a command that ran and exited non-zero.
type CommandRunner func(ctx context.Context, command string, stdoutFile, stderrFile, stdinFile *string) (exitCode int, err error)

// RunShellCommand is the default CommandRunner, implemented with
// os/exec: no library in the corpus wraps shell invocation any more
// conveniently than the standard library already does, so this stays
// on os/exec rather than introducing a dependency purely to run "sh -c".
func RunShellCommand(ctx context.Context, command string, stdoutFile, stderrFile, stdinFile *string) (exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	if stdinFile != nil {
		f, openErr := os.Open(*stdinFile)
		if openErr != nil {
			return 0, errors.E(errors.Other, "opening stdin file "+*stdinFile, openErr)
		}
		defer errors.CleanUp(f.Close, &err)
		cmd.Stdin = f
	}
	if stdoutFile != nil {
		f, createErr := os.Create(*stdoutFile)
		if createErr != nil {
			return 0, errors.E(errors.Other, "creating stdout file "+*stdoutFile, createErr)
		}
		defer errors.CleanUp(f.Close, &err)
		cmd.Stdout = f
	} else {
		cmd.Stdout = os.Stdout
	}
	if stderrFile != nil {
		f, createErr := os.Create(*stderrFile)
		if createErr != nil {
			return 0, errors.E(errors.Other, "creating stderr file "+*stderrFile, createErr)
		}
		defer errors.CleanUp(f.Close, &err)
		cmd.Stderr = f
	} else {
		cmd.Stderr = os.Stderr
	}

	runErr := cmd.Run()
	if runErr == nil {
		return 0, nil
	}
	var exitError *exec.ExitError
	if stderrors.As(runErr, &exitError) {
		return exitError.ExitCode(), nil
	}
	return 0, errors.E(errors.Other, "command failed", pkgerrors.Wrap(runErr, command))
}

// SystemCommandNode is a FileProcessNode specialized to run an "sc"
// directive's shell command, wrapping RunShellCommand (or a caller-
// supplied CommandRunner) as the process's command function.
type SystemCommandNode struct {
	params SystemCommandParams
	*FileProcessNode
}

// NewSystemCommandNode builds the FileProcessNode backing an "sc"
// directive: inputs are this command's already-resolved input nodes
// (including a trailing stdin node, if any, appended by the caller);
// getDeps surfaces extra dependencies discovered from params.DepsFile.
func NewSystemCommandNode(
	inputs []FileInfoNodeOutput,
	params SystemCommandParams,
	runner CommandRunner,
	getDeps GetDepsFunc,
	log ProcessLog,
	stat StatFunc,
) *SystemCommandNode {
	if runner == nil {
		runner = RunShellCommand
	}
	command := func(ctx context.Context) error {
		exitCode, err := runner(ctx, params.Command, params.StdoutFile, params.StderrFile, params.StdinFile)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			// Capitalized and punctuated to match the literal wire text
			// fileprocess.go's "Error executing command: " wrap produces.
			return fmt.Errorf("Exit code %d.", exitCode)
		}
		return nil
	}

	return &SystemCommandNode{
		params: params,
		FileProcessNode: NewFileProcessNode(
			inputs, params.Outputs, params.SoftOutputs, command, getDeps, log, stat,
		),
	}
}

// Params returns the resolved parameters this node was built from.
func (n *SystemCommandNode) Params() SystemCommandParams {
	return n.params
}
