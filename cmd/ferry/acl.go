package main

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/session"
	"github.com/bamsammich/ferry/internal/stats"
	"github.com/bamsammich/ferry/internal/worker"
)

func newAclCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Read or change access control lists",
	}

	get := &cobra.Command{
		Use:   "get LOCATION",
		Short: "Print the grants on a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, p, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			perm := session.Feature[feature.AclPermission](s, feature.AclPermissionKey, nil)
			if perm == nil {
				return unsupported("acl", s)
			}
			acl, err := perm.ReadAcl(ctx, p)
			if err != nil {
				return err
			}
			if acl.IsEmpty() {
				fmt.Fprintln(a.stdout, acl)
				return nil
			}
			for _, grant := range strings.Split(acl.String(), ",") {
				fmt.Fprintln(a.stdout, grant)
			}
			return nil
		},
	}

	var recursive, force bool
	set := &cobra.Command{
		Use:   "set LOCATION (MODE | GRANT...)",
		Short: "Replace the grants on a file or directory",
		Long: `Replace the grants on a file or directory. Pass either an octal mode
(644) or grants of the form USER=ROLE, where USER is owner, group, others,
email:ADDRESS, group:URI or a canonical user ID, and ROLE is READ, WRITE,
EXECUTE, FULL_CONTROL, READ_ACP or WRITE_ACP.

Entries whose grants already match are skipped unless --force is given.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			acl, err := parseAcl(args[1:])
			if err != nil {
				return err
			}
			acl.Modified = force
			s, p, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			return a.track(p.Abs(), func(events chan<- event.Event, _ *stats.Collector) error {
				_, err := worker.Start[remote.Acl](ctx, &worker.WriteAcl{
					Files:     []*remote.Path{p},
					Acl:       acl,
					Recursive: recursive,
					Feature:   session.Feature[feature.AclPermission](s, feature.AclPermissionKey, nil),
					List:      session.Feature[feature.List](s, feature.ListKey, nil),
					Logger:    a.logger,
					Events:    events,
				}, worker.WithEvents(events), worker.WithLogger(a.logger)).Wait()
				if err != nil {
					a.logger.Debug("write acl failed", "path", p.Abs(), "error", err)
				}
				return nil
			})
		},
	}
	set.Flags().BoolVarP(&recursive, "recursive", "R", false, "apply to everything beneath a directory")
	set.Flags().BoolVar(&force, "force", false, "write even where the grants already match")

	cmd.AddCommand(get, set)
	return cmd
}

// parseAcl reads an octal mode or a list of USER=ROLE grants.
func parseAcl(args []string) (remote.Acl, error) {
	if len(args) == 1 && !strings.Contains(args[0], "=") {
		mode, err := strconv.ParseUint(args[0], 8, 32)
		if err != nil || mode > 0o777 {
			return remote.Acl{}, fmt.Errorf("invalid mode %q", args[0])
		}
		return remote.AclFromMode(fs.FileMode(mode)), nil
	}
	grants := make([]remote.Grant, 0, len(args))
	for _, arg := range args {
		who, role, ok := strings.Cut(arg, "=")
		if !ok || who == "" || role == "" {
			return remote.Acl{}, fmt.Errorf("invalid grant %q (want USER=ROLE)", arg)
		}
		grants = append(grants, remote.Grant{User: parseUser(who), Role: remote.Role(strings.ToUpper(role))})
	}
	return remote.NewAcl(grants...), nil
}

func parseUser(s string) remote.User {
	switch s {
	case "owner":
		return remote.User{Kind: remote.OwnerUser}
	case "group":
		return remote.User{Kind: remote.GroupOwner}
	case "others":
		return remote.User{Kind: remote.Others}
	}
	if id, ok := strings.CutPrefix(s, "email:"); ok {
		return remote.User{Kind: remote.EmailUser, ID: id}
	}
	if id, ok := strings.CutPrefix(s, "group:"); ok {
		return remote.User{Kind: remote.GroupUser, ID: id}
	}
	return remote.User{Kind: remote.CanonicalUser, ID: s}
}
