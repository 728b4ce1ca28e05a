package main

import (
	"fmt"

	"cipherpaste/svc/store"
	"cipherpaste/svc/svc"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newOpenCmd(a *app) *cobra.Command {
	var password, host string
	cmd := &cobra.Command{
		Use:   "open <link|id|transport>",
		Short: "Verify a paste and print its content",
		Long: `Accepts a full paste link, a short link or bare id (looked up in the
configured store), or a raw transport string.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := *a.cfg
			if host != "" {
				conf.Host = host
			}
			cdc, err := a.codec()
			if err != nil {
				return a.fail(cmd, "Invalid key schedule", err)
			}
			var st svc.Store
			if store.ParseRef(conf.Host, args[0]).Kind == store.RefID {
				kv, err := openBackend(&conf)
				if err != nil {
					return a.fail(cmd, "Failed to open paste store", err)
				}
				defer kv.Close()
				s, err := newStore(&conf, kv, conf.Host)
				if err != nil {
					return a.fail(cmd, "Failed to open paste store", err)
				}
				st = s
			}
			opened, err := svc.NewPaste(cdc, st, &conf).Open(cmd.Context(), args[0], password)
			if err != nil {
				return a.fail(cmd, "Could not open paste", err)
			}
			if opened.Expired {
				warn(cmd.ErrOrStderr(), "paste expired at "+opened.Paste.ExpiresAt)
			}
			visibility := "private"
			if opened.Paste.IsPublic {
				visibility = "public"
			}
			fmt.Fprintln(cmd.ErrOrStderr(), color.GreenString("✓")+" verified "+visibility+" paste created "+opened.Paste.CreatedAt)
			fmt.Fprint(cmd.OutOrStdout(), opened.Plaintext)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "secret", "s", "", "password for private pastes")
	cmd.Flags().Bool("help", false, "help for open")
	cmd.Flags().StringVarP(&host, "host", "h", "", "host URL prefix to strip (default from PASTE_HOST)")
	return cmd
}
