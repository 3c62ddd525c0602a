package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sieve/internal/management"
	"sieve/internal/tui/editor"
	"sieve/pkg/cel"
	"sieve/pkg/models"
)

var errNoMatch = errors.New("subject does not match")

func (c *cli) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <file>",
		Short: "Edit a filter list in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			list, err := readFilterList(path)
			if err != nil {
				return err
			}

			model := editor.New(filepath.Base(path), list, func(l models.FilterList) error {
				return writeFilterList(path, l)
			})

			final, err := tea.NewProgram(model,
				tea.WithContext(cmd.Context()),
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
			).Run()
			if err != nil {
				return fmt.Errorf("editor failed: %w", err)
			}

			if m, ok := final.(editor.Model); ok && m.Dirty() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: unsaved changes discarded")
			}
			return nil
		},
	}
}

func (c *cli) validateCmd() *cobra.Command {
	var condition string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a filter list and print its CEL expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readFilterList(args[0])
			if err != nil {
				return err
			}
			if err := models.ValidateFilterList(list); err != nil {
				return err
			}

			evaluator, err := cel.NewEvaluator()
			if err != nil {
				return err
			}
			_, expr, err := evaluator.CompileFilterSet(list, condition)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, f := range list {
				fmt.Fprintf(out, "%d. %s\n", i+1, models.Describe(f))
			}
			fmt.Fprintln(out, expr)
			return nil
		},
	}

	cmd.Flags().StringVar(&condition, "condition", "", "Extra CEL condition ANDed with the list")
	return cmd
}

func (c *cli) evalCmd() *cobra.Command {
	var condition string

	cmd := &cobra.Command{
		Use:   "eval <filters> <subject>",
		Short: "Evaluate a filter list against a subject locally",
		Long: "Evaluates the filter list against a subject file of the form " +
			`{"properties": {...}, "metrics": {...}}. Exits 1 when the subject does not match.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readFilterList(args[0])
			if err != nil {
				return err
			}
			subject, err := readSubject(args[1])
			if err != nil {
				return err
			}

			evaluator, err := cel.NewEvaluator()
			if err != nil {
				return err
			}
			program, _, err := evaluator.CompileFilterSet(list, condition)
			if err != nil {
				return err
			}
			matched, err := evaluator.Matches(cmd.Context(), program, subject)
			if err != nil {
				return err
			}

			if !matched {
				fmt.Fprintln(cmd.OutOrStdout(), "no match")
				return errNoMatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "match")
			return nil
		},
	}

	cmd.Flags().StringVar(&condition, "condition", "", "Extra CEL condition ANDed with the list")
	return cmd
}

func (c *cli) pullCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pull <id>",
		Short: "Download the filter list of a filter set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			set, err := api.GetFilterSet(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return encodeFilterList(cmd.OutOrStdout(), set.Filters)
			}
			if err := writeFilterList(output, set.Filters); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d filters of %q to %s\n", len(set.Filters), set.Name, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func (c *cli) pushCmd() *cobra.Command {
	var (
		id          string
		name        string
		description string
		condition   string
		priority    int
		disabled    bool
	)

	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Create a filter set from a file, or replace the filters of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readFilterList(args[0])
			if err != nil {
				return err
			}
			if err := models.ValidateFilterList(list); err != nil {
				return err
			}

			api, err := c.client()
			if err != nil {
				return err
			}

			if id != "" {
				req := management.UpdateFilterSetRequest{Filters: &list}
				flags := cmd.Flags()
				if flags.Changed("name") {
					req.Name = &name
				}
				if flags.Changed("description") {
					req.Description = &description
				}
				if flags.Changed("condition") {
					req.Condition = &condition
				}
				if flags.Changed("priority") {
					req.Priority = &priority
				}
				if flags.Changed("disabled") {
					enabled := !disabled
					req.Enabled = &enabled
				}
				set, err := api.UpdateFilterSet(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", set.ID)
				return nil
			}

			if name == "" {
				return fmt.Errorf("--name is required when creating a filter set")
			}
			enabled := !disabled
			set, err := api.CreateFilterSet(cmd.Context(), management.CreateFilterSetRequest{
				Name:        name,
				Description: description,
				Filters:     list,
				Condition:   condition,
				Priority:    priority,
				Enabled:     &enabled,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", set.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&id, "id", "", "Update this filter set instead of creating one")
	flags.StringVar(&name, "name", "", "Filter set name")
	flags.StringVar(&description, "description", "", "Filter set description")
	flags.StringVar(&condition, "condition", "", "Extra CEL condition")
	flags.IntVar(&priority, "priority", 0, "Evaluation priority, higher runs first")
	flags.BoolVar(&disabled, "disabled", false, "Store the filter set disabled")
	return cmd
}

func (c *cli) examplesCmd() *cobra.Command {
	var conditions bool

	cmd := &cobra.Command{
		Use:   "examples [name]",
		Short: "List example filter lists, or print one as a starting file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			catalog := cel.FilterListExamples
			if conditions {
				catalog = cel.ConditionExamples
			}

			if len(args) == 0 {
				for _, name := range slices.Sorted(maps.Keys(catalog)) {
					fmt.Fprintf(out, "%-22s %s\n", name, catalog[name])
				}
				return nil
			}

			raw, ok := catalog[args[0]]
			if !ok {
				return fmt.Errorf("unknown example %q", args[0])
			}
			if conditions {
				fmt.Fprintln(out, raw)
				return nil
			}
			var list models.FilterList
			if err := json.Unmarshal([]byte(raw), &list); err != nil {
				return fmt.Errorf("example %s: %w", args[0], err)
			}
			return encodeFilterList(out, list)
		},
	}

	cmd.Flags().BoolVar(&conditions, "conditions", false, "Show raw CEL condition examples instead")
	return cmd
}
