package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rulecheck",
		Short:         "Offline tooling for casework rule files",
		Long:          `rulecheck evaluates YAML or JSON rule files against a context file, validates them, and prints the workflow state machine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newEvaluateCmd(), newValidateCmd(), newMachineCmd())
	return root
}

// loadContext reads a JSON or YAML mapping used as an evaluation context
func loadContext(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	var ctx map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &ctx)
	} else {
		err = yaml.Unmarshal(data, &ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("context file %s is not a mapping: %w", path, err)
	}
	if ctx == nil {
		ctx = map[string]any{}
	}
	return ctx, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
