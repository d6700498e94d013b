package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bamsammich/ferry/internal/feature"
	"github.com/bamsammich/ferry/internal/host"
	"github.com/bamsammich/ferry/internal/remote"
	"github.com/bamsammich/ferry/internal/vault"
)

func newVaultCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Create or check encrypted vaults",
		Long: `A vault is a directory whose names and contents are encrypted before
they leave this machine. Pass --vault PATH to any command to work inside one.

The passphrase is read from FERRY_PASSWORD_<SCHEME>_<HOST>_VAULT_<PATH>,
then FERRY_PASSWORD, then the terminal.`,
	}

	create := &cobra.Command{
		Use:   "create LOCATION",
		Short: "Initialize a vault in a new or empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, p, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			root := remote.Parse(p.Abs(), remote.Directory)
			user := vault.PasswordUser(root)
			h := s.Host()
			pass, ok := a.store.Password(h.Protocol, h.Port, h.Hostname, user)
			if !ok {
				creds := host.Credentials{User: user}
				err := a.prompt.Prompt(ctx, h, &creds, "Create Vault",
					"Choose a passphrase for the vault at "+root.Abs()+".",
					feature.LoginOptions{Password: true, Passphrase: true})
				if err != nil {
					return err
				}
				pass = creds.Password
			}
			if _, err := s.CreateVault(ctx, root, pass, a.vaultOptions()); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "vault created at %s\n", root.Abs())
			return nil
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock LOCATION",
		Short: "Check that a vault opens with the available passphrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, p, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			root := remote.Parse(p.Abs(), remote.Directory)
			if _, err := s.UnlockVault(ctx, root, a.store, a.prompt, a.vaultOptions()); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "vault at %s unlocked\n", root.Abs())
			return nil
		},
	}

	cmd.AddCommand(create, unlock)
	return cmd
}
