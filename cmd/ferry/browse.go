package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/filter"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/session"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/transfer"
	"github.com/bamsammich/ferry/internal/ui"
	"github.com/bamsammich/ferry/internal/worker"
)

func newLsCmd(a *app) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls LOCATION",
		Short: "List a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, dir, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			list := session.Feature[feature.List](s, feature.ListKey, nil)
			if list == nil {
				return unsupported("list", s)
			}
			if !dir.IsDirectory() {
				printList(a, remote.List{dir}, long)
				return nil
			}
			entries, err := list.List(ctx, dir, nil)
			if err != nil {
				return err
			}
			printList(a, entries, long)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size, modification time and permissions")
	return cmd
}

func printList(a *app, entries remote.List, long bool) {
	if !long {
		for _, e := range entries {
			fmt.Fprintln(a.stdout, displayName(e))
		}
		return
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, e := range entries {
		attrs := e.Attributes()
		modified := "-"
		if !attrs.Modified.IsZero() {
			modified = attrs.Modified.Local().Format("2006-01-02 15:04")
		}
		size := ui.FormatBytes(attrs.Size)
		if e.IsDirectory() {
			size = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", kind(e), size, modified, displayName(e))
	}
	_ = tw.Flush()
}

func displayName(p *remote.Path) string {
	if p.IsDirectory() {
		return p.Name() + "/"
	}
	return p.Name()
}

func kind(p *remote.Path) string {
	switch {
	case p.IsVolume():
		return "v"
	case p.IsDirectory():
		return "d"
	case p.IsSymlink():
		return "l"
	default:
		return "-"
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	var storageClass string
	cmd := &cobra.Command{
		Use:   "mkdir LOCATION",
		Short: "Create a directory, or a bucket at the top level of an object store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			arg := args[0]
			if !strings.HasSuffix(arg, "/") {
				arg += "/"
			}
			s, dir, err := a.open(ctx, arg)
			if err != nil {
				return err
			}
			mkdir := session.Feature[feature.Directory](s, feature.DirectoryKey, nil)
			if mkdir == nil {
				return unsupported("mkdir", s)
			}
			status := transfer.NewStatus()
			status.StorageClass = storageClass
			created, err := mkdir.Mkdir(ctx, dir, status)
			if err != nil {
				return err
			}
			a.logger.Info("created", "path", created.Abs(), "type", created.Type().String())
			return nil
		},
	}
	cmd.Flags().StringVar(&storageClass, "storage-class", "", "storage class recorded on the directory")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm LOCATION...",
		Short: "Delete files and directories with their contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bySession := make(map[*session.Session]remote.List)
			var order []*session.Session
			for _, arg := range args {
				s, p, err := a.open(ctx, arg)
				if err != nil {
					return err
				}
				if _, ok := bySession[s]; !ok {
					order = append(order, s)
				}
				bySession[s] = append(bySession[s], p)
			}

			return a.track("", func(events chan<- event.Event, _ *stats.Collector) error {
				pool := worker.NewPool(len(order))
				for _, s := range order {
					worker.Submit[remote.List](ctx, pool, &worker.Delete{
						Files:   bySession[s],
						Feature: session.Feature[feature.Delete](s, feature.DeleteKey, nil),
						List:    session.Feature[feature.List](s, feature.ListKey, nil),
						Prompt:  a.prompt,
						Events:  events,
					}, worker.WithEvents(events), worker.WithLogger(a.logger))
				}
				pool.Wait()
				return nil
			})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search LOCATION QUERY",
		Short: "Find entries in a directory by name prefix or glob",
		Long: `Find entries in a directory. A QUERY containing *, ? or [ is a glob
matched against the path below LOCATION; anything else is a case-insensitive
name prefix.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, dir, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			f, err := queryFilter(dir, args[1])
			if err != nil {
				return err
			}
			found, err := worker.Start[remote.List](ctx, &worker.Search{
				Workdir: dir,
				Filter:  f,
				Feature: session.Feature[feature.Search](s, feature.SearchKey, nil),
			}, worker.WithLogger(a.logger)).Wait()
			if err != nil {
				return err
			}
			for _, p := range found {
				fmt.Fprintln(a.stdout, remote.Relativize(dir.Abs(), p.Abs()))
			}
			return nil
		},
	}
}

func queryFilter(dir *remote.Path, query string) (filter.Filter, error) {
	if !strings.ContainsAny(query, "*?[") {
		return filter.NewPrefix(query), nil
	}
	chain := filter.NewChain()
	if err := chain.AddInclude(query); err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	if err := chain.AddExclude("*"); err != nil {
		return nil, err
	}
	return chain.Under(dir), nil
}

func newDuCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "du LOCATION...",
		Short: "Sum the size of files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bySession := make(map[*session.Session]remote.List)
			var order []*session.Session
			for _, arg := range args {
				s, p, err := a.open(ctx, arg)
				if err != nil {
					return err
				}
				if _, ok := bySession[s]; !ok {
					order = append(order, s)
				}
				bySession[s] = append(bySession[s], p)
			}

			var grand int64
			for _, s := range order {
				total, err := worker.Start[int64](ctx, &worker.CalculateSize{
					Files: bySession[s],
					List:  session.Feature[feature.List](s, feature.ListKey, nil),
				}, worker.WithLogger(a.logger)).Wait()
				if err != nil {
					return err
				}
				for _, p := range bySession[s] {
					fmt.Fprintf(a.stdout, "%s\t%s\n", ui.FormatBytes(p.Attributes().Size), p.Abs())
				}
				grand += total
			}
			if len(args) > 1 {
				fmt.Fprintf(a.stdout, "%s\ttotal\n", ui.FormatBytes(grand))
			}
			return nil
		},
	}
}
