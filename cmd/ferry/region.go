package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/session"
)

func newLocationCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "location LOCATION",
		Short: "Print the region a bucket lives in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, p, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			loc := session.Feature[feature.Location](s, feature.LocationKey, nil)
			if loc == nil {
				return unsupported("location", s)
			}
			if all {
				regions, err := loc.Locations(ctx)
				if err != nil {
					return err
				}
				for _, r := range regions {
					fmt.Fprintln(a.stdout, r)
				}
				return nil
			}
			region, err := loc.Location(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, region)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "list", false, "list every region the backend can create buckets in")
	return cmd
}

func newAccelerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "accelerate LOCATION [on|off]",
		Short:     "Show or toggle transfer acceleration for a bucket",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, p, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			accel := session.Feature[feature.TransferAcceleration](s, feature.TransferAccelerationKey, nil)
			if accel == nil {
				return unsupported("transfer acceleration", s)
			}
			if len(args) == 2 {
				switch args[1] {
				case "on", "off":
				default:
					return fmt.Errorf("want on or off, got %q", args[1])
				}
				return accel.SetStatus(ctx, p, args[1] == "on")
			}
			on, err := accel.Status(ctx, p)
			if err != nil {
				return err
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintln(a.stdout, state)
			return nil
		},
	}
}
