package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"usbverifier/internal/allocator"
	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

const disabledIndexText = "x"

const (
	enableText  = "ENABLE"
	disableText = "DISABLE"
)

func writeRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// valuesRecords lists every verification value, one section per descriptor.
func valuesRecords(set *registry.Set) [][]string {
	var out [][]string
	for _, r := range set.Registries() {
		out = append(out, []string{r.Descriptor().Name + " Fields", "Operator", "Value", "Verification Level"})
		for _, e := range r.Entries() {
			out = append(out, []string{e.Field, e.Value.Operator.DisplayName(), e.Value.Raw, e.Value.Level.String()})
		}
		out = append(out, []string{"", "", "", ""})
	}
	return out
}

// memoryConfigRecords lists the index and row count of every field, per operator.
func memoryConfigRecords(configs []allocator.Config) [][]string {
	var out [][]string
	for i, cfg := range configs {
		out = append(out, []string{cfg.Operator.ReadableName(), "Index", "Counter"})
		var current string
		for _, slot := range cfg.Slots {
			if slot.Descriptor.Type != current {
				if current != "" {
					out = append(out, []string{"", "", ""})
				}
				current = slot.Descriptor.Type
				out = append(out, []string{slot.Descriptor.Name, "", ""})
			}
			index := disabledIndexText
			if slot.Enabled {
				index = strconv.Itoa(slot.Index)
			}
			out = append(out, []string{slot.Field.Name, index, strconv.Itoa(slot.Count)})
		}
		out = append(out,
			[]string{"", "", ""},
			[]string{"Required Memory Address Bit Length", strconv.Itoa(cfg.AddressWidth), ""},
			[]string{"Memory Address Max Index", strconv.Itoa(cfg.MaxIndex), ""},
			[]string{"Memory Address Max Count", strconv.Itoa(cfg.MaxCount), ""},
		)
		if i < len(configs)-1 {
			out = append(out, []string{"", "", ""}, []string{"", "", ""})
		}
	}
	return out
}

func summaryRecords(s allocator.Summary) [][]string {
	out := [][]string{{"Operators", "Status"}}
	for _, st := range s.Operators {
		status := disableText
		if st.Enabled {
			status = enableText
		}
		out = append(out, []string{st.Operator.String(), status})
	}
	return append(out,
		[]string{"", ""},
		[]string{"Operators in Use", strconv.Itoa(s.InUse())},
		[]string{"Operators Available", strconv.Itoa(len(verification.Operators()))},
		[]string{"Watchdog Limit (in clock cycles)", strconv.Itoa(s.WatchdogLimit)},
	)
}

func statusRecords(statuses []registry.DescriptorStatus) [][]string {
	out := [][]string{{"Descriptors", "Status"}}
	for _, st := range statuses {
		out = append(out, []string{st.Descriptor.Name, string(st.Status)})
	}
	return out
}
