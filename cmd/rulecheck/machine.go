package main

import (
	"github.com/spf13/cobra"

	"github.com/liamcoop/casework/workflow"
)

type machineTransition struct {
	To     workflow.State   `json:"to"`
	Guards []workflow.Guard `json:"guards"`
}

type machineState struct {
	State       workflow.State      `json:"state"`
	Terminal    bool                `json:"terminal"`
	Transitions []machineTransition `json:"transitions"`
}

func newMachineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "machine",
		Short: "Print the workflow state machine and its guards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			states := make([]machineState, 0, len(workflow.States()))
			for _, s := range workflow.States() {
				entry := machineState{State: s, Terminal: s.Terminal(), Transitions: []machineTransition{}}
				for _, to := range workflow.AllowedTargets(s) {
					guards := workflow.RequiredGuards(s, to)
					if guards == nil {
						guards = []workflow.Guard{}
					}
					entry.Transitions = append(entry.Transitions, machineTransition{To: to, Guards: guards})
				}
				states = append(states, entry)
			}
			return printJSON(cmd.OutOrStdout(), states)
		},
	}
}
