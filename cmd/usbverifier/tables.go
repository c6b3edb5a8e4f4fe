package main

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"usbverifier/internal/allocator"
	"usbverifier/internal/registry"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderValues prints the values of regs, restricted to field when set.
func renderValues(w io.Writer, regs []*registry.Registry, field string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Descriptor", "Field", "Operator", "Value", "Level"})
	n := 0
	for _, r := range regs {
		for _, e := range r.Entries() {
			if field != "" && e.Field != field {
				continue
			}
			t.AppendRow(table.Row{r.Descriptor().Name, e.Field, e.Value.Operator.DisplayName(), e.Value.Raw, e.Value.Level.String()})
			n++
		}
	}
	t.AppendFooter(table.Row{"", "", "", "Values", n})
	t.Render()
}

func renderOperators(w io.Writer, configs []allocator.Config, summary allocator.Summary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Operator", "Status", "Rows", "Address Bits", "Max Index", "Max Count"})
	for _, cfg := range configs {
		status := "DISABLE"
		if summary.Enabled(cfg.Operator) {
			status = "ENABLE"
		}
		t.AppendRow(table.Row{cfg.Operator.String(), status, cfg.Total, cfg.AddressWidth, cfg.MaxIndex, cfg.MaxCount})
	}
	t.AppendFooter(table.Row{"In Use", strconv.Itoa(summary.InUse()), "", "Watchdog Limit", summary.WatchdogLimit, ""})
	t.Render()
}

func renderStatus(w io.Writer, statuses []registry.DescriptorStatus) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Descriptor", "Status"})
	for _, st := range statuses {
		t.AppendRow(table.Row{st.Descriptor.Name, string(st.Status)})
	}
	t.Render()
}
