// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/webnn/backends"
	"github.com/olekukonko/tablewriter"
)

// WriteSummary renders the steps of the program as a table: one row per step, with its inputs, output
// shape, scratch slot and the range of steps during which the output is live.
func WriteSummary(w io.Writer, program *backends.Program) {
	_, _ = fmt.Fprintf(w, "Program %s\n", String(program))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Op", "Inputs", "Output", "Slot", "Live"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for stepIdx, step := range program.Steps {
		inputs := make([]string, len(step.Inputs))
		for ii, input := range step.Inputs {
			inputs[ii] = valueLabel(program.Values[input])
		}
		output := program.Values[step.Output]
		slot := fmt.Sprintf("#%d (%s)", output.Slot, humanize.Bytes(uint64(program.SlotSizes[output.Slot])))
		live := fmt.Sprintf("%d-%d", stepIdx, output.LastUse)
		if output.IsOutput() {
			names := make([]string, len(output.Outputs))
			for ii, outputIdx := range output.Outputs {
				names[ii] = program.Outputs[outputIdx].Name
			}
			live = fmt.Sprintf("%d-end, output %q", stepIdx, names)
		}
		table.Append([]string{
			fmt.Sprintf("%d", stepIdx),
			step.Op.String(),
			strings.Join(inputs, ", "),
			output.Shape.String(),
			slot,
			live,
		})
	}
	table.Render()
}

func valueLabel(value *backends.Value) string {
	switch value.Kind {
	case backends.ValueInput:
		return fmt.Sprintf("input %q", value.Name)
	case backends.ValueConstant:
		return fmt.Sprintf("const%s", value.Shape)
	default:
		return fmt.Sprintf("step #%d", value.ProducedAt)
	}
}
