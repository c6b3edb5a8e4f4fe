package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"usbverifier/internal/allocator"
	"usbverifier/internal/export"
	"usbverifier/internal/registry"
	"usbverifier/internal/ruleset"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "add <descriptor> <field> <operator> <value> [level] [<operator> <value> [level]]...",
		Aliases: []string{"a"},
		Short:   "Add verification values to a descriptor field",
		Long: `Adds one or more verification values to a descriptor field.

A value without its own level takes the level of the previous value; the
first defaults to mandatory. Either every value is added or none.

Example:
  usbverifier add device idVendor eq 046D or eq 1D6B`,
		Args: cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd.Context(), cmd.OutOrStdout(), ruleset.KindAdd, args)
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <descriptor> <field> <value> [operator]...",
		Aliases: []string{"rm", "r"},
		Short:   "Remove verification values matching a value",
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.apply(cmd.Context(), cmd.OutOrStdout(), ruleset.KindRemove, args)
		},
	}
}

// apply runs one add or remove command and saves the rule set.
func (a *app) apply(ctx context.Context, out io.Writer, kind ruleset.Kind, args []string) error {
	c, err := ruleset.ParseArgs(kind, args)
	if err != nil {
		return err
	}
	st, err := ruleset.Apply(a.set, []ruleset.Command{c})
	if err != nil {
		return err
	}
	if err := a.persist(ctx); err != nil {
		return err
	}
	a.logger.Info("rules updated", zap.Stringer("command", c), zap.Int("added", st.Added), zap.Int("removed", st.Removed))
	if kind == ruleset.KindRemove {
		_, err = fmt.Fprintf(out, "Removed %d value(s)\n", st.Removed)
		return err
	}
	_, err = fmt.Fprintf(out, "Added %d value(s)\n", st.Added)
	return err
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "import <rules-file>",
		Aliases: []string{"imp", "i"},
		Short:   "Import verification values from a rule file or YAML document",
		Long: `Imports a text rule file of add/remove commands, one per line, with '#'
comments, or a YAML rule document (.yaml, .yml) written by export --rules-yaml.

A YAML document replaces the whole rule set. Nothing changes when any line fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importFile(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func (a *app) importFile(ctx context.Context, out io.Writer, path string) error {
	st, err := ruleset.ImportFile(a.set, path)
	if err != nil {
		return err
	}
	if err := a.persist(ctx); err != nil {
		return err
	}
	a.logger.Info("rules imported", zap.String("file", path), zap.Int("commands", st.Commands))
	_, err = fmt.Fprintf(out, "Imported %s: %d command(s), %d added, %d removed\n", path, st.Commands, st.Added, st.Removed)
	return err
}

func newExportCmd(a *app) *cobra.Command {
	var rulesYAML string
	cmd := &cobra.Command{
		Use:     "export [directory]",
		Aliases: []string{"exp", "e"},
		Short:   "Export memory images, reports and patched HDL sources",
		Long: `Writes the CSV reports, one memory initialization file per operator and,
when an HDL source directory is configured, the patched HDL sources.

An existing export directory is renamed with its modification time appended.
When export.publish is set every file is uploaded to the artifact store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			return a.export(cmd.Context(), cmd.OutOrStdout(), dir, rulesYAML)
		},
	}
	cmd.Flags().StringVar(&rulesYAML, "rules-yaml", "", "also write the rule set as a YAML document to this file")
	return cmd
}

func (a *app) export(ctx context.Context, out io.Writer, dir, rulesYAML string) error {
	res, err := a.runExport(ctx, dir)
	if res.Dir != "" {
		printExport(out, res)
	}
	if err != nil {
		return err
	}
	if rulesYAML != "" {
		if err := writeRulesYAML(rulesYAML, a.set); err != nil {
			return err
		}
		fmt.Fprintf(out, "Rules written to %s\n", rulesYAML)
	}
	return nil
}

func printExport(out io.Writer, res export.Result) {
	fmt.Fprintf(out, "Exported to %s (run %s)\n", res.Dir, res.RunID)
	if res.BackupDir != "" {
		fmt.Fprintf(out, "Previous export moved to %s\n", res.BackupDir)
	}
	fmt.Fprintf(out, "Operators in use: %d, watchdog limit: %d cycles\n", res.Summary.InUse(), res.Summary.WatchdogLimit)
	if len(res.Unmatched) > 0 {
		fmt.Fprintf(out, "Wrapper constants missing from the HDL template: %d\n", len(res.Unmatched))
	}
	if len(res.Published) > 0 {
		fmt.Fprintf(out, "Published %d file(s)\n", len(res.Published))
	}
}

func writeRulesYAML(path string, set *registry.Set) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rules document: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return ruleset.WriteYAML(f, set)
}

func newSummaryCmd(a *app) *cobra.Command {
	var operators bool
	cmd := &cobra.Command{
		Use:     "summary [descriptor [field]]",
		Aliases: []string{"sum", "s"},
		Short:   "Show verification values",
		Args:    cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if operators {
				renderOperators(cmd.OutOrStdout(), allocator.AllocateAll(a.set), allocator.Summarize(a.set))
				return nil
			}
			return a.summary(cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().BoolVar(&operators, "operators", false, "show the operator memory layout instead")
	return cmd
}

func (a *app) summary(out io.Writer, args []string) error {
	regs := a.set.Registries()
	var field string
	if len(args) > 0 {
		r, err := a.set.Lookup(args[0])
		if err != nil {
			return err
		}
		regs = []*registry.Registry{r}
		if len(args) > 1 {
			f, err := r.Field(args[1])
			if err != nil {
				return err
			}
			field = f.Name
		}
	}
	renderValues(out, regs, field)
	return nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which descriptors the verifier checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			renderStatus(cmd.OutOrStdout(), a.set.Status())
			return nil
		},
	}
}
