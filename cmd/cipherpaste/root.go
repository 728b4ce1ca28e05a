package main

import (
	"context"
	"fmt"
	"io"

	"cipherpaste/cfg"
	"cipherpaste/pkg/codec"
	"cipherpaste/svc/cache"
	"cipherpaste/svc/db"
	"cipherpaste/svc/store"
	"cipherpaste/svc/util"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type app struct {
	cfg      *cfg.Cfg
	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "cipherpaste",
		Short: "cipherpaste - signed, optionally encrypted, portable pastes.",
		Long: `cipherpaste builds self-contained paste links. Public pastes are signed;
private pastes are encrypted with a password-derived key and signed with it.

Usage:
  cipherpaste <command> [flags]

Available Commands:
  create     Build a paste link
  open       Verify and print a paste
  serve      Run the HTTP API
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := cfg.Load()
			if err != nil {
				return a.fail(cmd, "Failed to load configuration", err)
			}
			a.cfg = c
			level := c.LogLevel
			if a.logLevel != "" {
				level = a.logLevel
			}
			util.InitLogTo(cmd.ErrOrStderr(), level, c.Environment == "development")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error, off)")
	root.AddCommand(newCreateCmd(a))
	root.AddCommand(newOpenCmd(a))
	root.AddCommand(newServeCmd(a))
	return root
}

// fail prints a one-line error to stderr and returns err so cobra exits
// non-zero.
func (a *app) fail(cmd *cobra.Command, msg string, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("✗")+" "+msg)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("Error: ")+err.Error())
	}
	if err == nil {
		err = errors.New(msg)
	}
	return err
}

func warn(w io.Writer, msg string) {
	fmt.Fprintln(w, color.YellowString("Warning: ")+msg)
}

func (a *app) codec() (*codec.Codec, error) {
	ks, ok := codec.ScheduleByName(a.cfg.KeySchedule)
	if !ok {
		return nil, errors.Errorf("unknown key schedule %q", a.cfg.KeySchedule)
	}
	return codec.New(codec.WithKeySchedule(ks)), nil
}

// backend is a store.KV that can also be probed and closed.
type backend interface {
	store.KV
	Ping(ctx context.Context) error
	Close() error
}

func openBackend(c *cfg.Cfg) (backend, error) {
	switch c.StoreBackend {
	case cfg.BackendRedis:
		r, err := db.NewRedis(c)
		if err != nil {
			return nil, err
		}
		return r, nil
	case cfg.BackendSQLite:
		s, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, errors.Errorf("unknown store backend %q", c.StoreBackend)
}

func newStore(c *cfg.Cfg, kv store.KV, host string) (*store.Store, error) {
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create LRU cache")
	}
	return store.New(kv, host, store.WithCache(lru), store.WithTimeout(c.StoreTimeout)), nil
}
