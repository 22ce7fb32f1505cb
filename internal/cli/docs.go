package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	couchhelper "github.com/biyonik/go-couch-helper"
)

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, done, err := opts.helper(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			var doc any
			if err := h.Get(ctx, args[0], &doc); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newUpsertCmd(opts *globalOptions) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "upsert [KEY] JSON",
		Short: "Create or replace a document; the key defaults to a new UUID",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, body := uuid.NewString(), args[0]
			if len(args) == 2 {
				key, body = args[0], args[1]
			}

			var doc any
			if err := json.Unmarshal([]byte(body), &doc); err != nil {
				return errors.Wrap(err, "document is not valid JSON")
			}

			ctx := cmd.Context()
			h, done, err := opts.helper(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			res, err := h.Upsert(ctx, key, doc, couchhelper.WithExpiry(expiry))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"key": key, "cas": res.Cas})
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "document time-to-live (0 for none)")
	return cmd
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove KEY",
		Aliases: []string{"delete", "rm"},
		Short:   "Remove a document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, done, err := opts.helper(ctx, cmd)
			if err != nil {
				return err
			}
			defer done()

			_, err = h.Remove(ctx, args[0])
			return err
		},
	}
}

func newPingCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that every endpoint of the bucket answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := opts.session(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Disconnect(ctx) }()

			ok, err := s.Ping(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("one or more endpoints are not healthy")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
