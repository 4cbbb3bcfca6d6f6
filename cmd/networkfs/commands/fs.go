package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fruitsalade/networkfs/internal/winclient"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/netfs"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *winclient.ClientCore, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}
		dir, parent, err := core.Session.Walk(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !dir.IsDir() {
			return fmt.Errorf("%s: not a directory", path)
		}
		entries, err := core.Session.ReadDir(cmd.Context(), dir.ID, parent.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	}),
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show an entry",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *winclient.ClientCore, args []string) error {
		node, err := core.Resolve(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "path:  %s\n", args[0])
		fmt.Fprintf(w, "id:    %d\n", node.ID)
		fmt.Fprintf(w, "kind:  %s\n", node.Kind)
		fmt.Fprintf(w, "mode:  %o\n", node.Mode)
		return nil
	}),
}

var touchCmd = &cobra.Command{
	Use:   "touch <path>",
	Short: "Create an empty file",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *winclient.ClientCore, args []string) error {
		return create(cmd, core, args[0], models.KindRegularFile)
	}),
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *winclient.ClientCore, args []string) error {
		return create(cmd, core, args[0], models.KindDirectory)
	}),
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *winclient.ClientCore, args []string) error {
		dir, name, err := core.ResolveParent(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if err := core.Session.Unlink(cmd.Context(), dir.ID, name); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return nil
	}),
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <path>",
	Short: "Remove an empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *winclient.ClientCore, args []string) error {
		dir, name, err := core.ResolveParent(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if err := core.Session.Rmdir(cmd.Context(), dir.ID, name); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return nil
	}),
}

// withCore opens a session around fn and closes it afterwards.
func withCore(fn func(*cobra.Command, *winclient.ClientCore, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		core, err := openCore()
		if err != nil {
			return err
		}
		defer core.Close()
		return fn(cmd, core, args)
	}
}

func create(cmd *cobra.Command, core *winclient.ClientCore, path string, kind models.Kind) error {
	dir, name, err := core.ResolveParent(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	node, err := core.Session.Create(cmd.Context(), dir.ID, name, kind)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", node.Kind, node.ID)
	return nil
}

func printEntries(w io.Writer, entries []netfs.DirEntry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pos", "Name", "Kind", "ID"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, e := range entries {
		table.Append([]string{
			strconv.FormatInt(e.Pos, 10),
			e.Name,
			e.Kind.String(),
			strconv.FormatUint(e.ID, 10),
		})
	}
	table.Render()
}
