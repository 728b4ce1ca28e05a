package main

import (
	"fmt"
	"strings"

	"cipherpaste/pkg/domain"
	"cipherpaste/svc/svc"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type createOpts struct {
	content        string
	public         string
	password       string
	expiresAt      string
	host           string
	syntax         string
	publish        bool
	expandNewlines bool
}

func newCreateCmd(a *app) *cobra.Command {
	o := &createOpts{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build a paste link from content",
		Long: `Builds a signed paste and prints a link that carries it.

  cipherpaste create -c "<content>" [-p <true|false>] [-s "<password>"] [-e "<expiration>"] [-h "<host>"]

Private pastes (-p false) require a password (-s). With --publish the paste is
also stored and a short link is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCreate(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.content, "content", "c", "", "content (required)")
	f.StringVarP(&o.public, "public", "p", "true", "isPublic flag (true or false)")
	f.StringVarP(&o.password, "secret", "s", "", "password (required if -p is false)")
	f.StringVarP(&o.expiresAt, "expires", "e", "", "expiration date, e.g. 2025-02-12T11:22:33Z (default never)")
	// -h is the host flag, so help gets no shorthand.
	f.Bool("help", false, "help for create")
	f.StringVarP(&o.host, "host", "h", "", "host URL (default from PASTE_HOST)")
	f.StringVar(&o.syntax, "syntax", "", "syntax label (default from DEFAULT_SYNTAX)")
	f.BoolVar(&o.publish, "publish", false, "also store the paste and print a short link")
	f.BoolVar(&o.expandNewlines, "expand-newlines", false, `turn a literal \n in content into a newline`)
	return cmd
}

func (a *app) runCreate(cmd *cobra.Command, o *createOpts) error {
	if o.content == "" {
		return a.fail(cmd, "Content (-c) is required.", nil)
	}
	public := strings.ToLower(o.public) == "true"
	if !public && o.password == "" {
		return a.fail(cmd, "Password (-s) is required for private pastes.", nil)
	}
	password := o.password
	if public && password != "" {
		warn(cmd.ErrOrStderr(), "Paste is marked public (-p true) but a password (-s) was provided. Ignoring password.")
		password = ""
	}
	content := o.content
	if o.expandNewlines {
		content = strings.ReplaceAll(content, `\n`, "\n")
	}
	conf := *a.cfg
	if o.host != "" {
		conf.Host = o.host
	}
	cdc, err := a.codec()
	if err != nil {
		return a.fail(cmd, "Invalid key schedule", err)
	}
	var st svc.Store
	if o.publish {
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
	out, err := svc.NewPaste(cdc, st, &conf).Create(cmd.Context(), domain.CreateParams{
		Content:   content,
		Public:    public,
		Password:  password,
		ExpiresAt: o.expiresAt,
		Syntax:    o.syntax,
		Publish:   o.publish,
	})
	if err != nil {
		return a.fail(cmd, "Failed to build paste", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Here's Your Paste:", out.URL)
	if o.publish {
		if out.PublishErr != nil {
			warn(cmd.ErrOrStderr(), "could not publish paste: "+out.PublishErr.Error())
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Short Link:", out.ShareURL)
		}
	}
	if len(out.URL) > 2000 {
		fmt.Fprintln(cmd.ErrOrStderr(), color.CyanString("→")+" link is long; some browsers truncate URLs, consider --publish")
	}
	return nil
}
