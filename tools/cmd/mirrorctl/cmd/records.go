// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/objutil"
	"github.com/gardener/cloud-mirror/mirror/kinds"

	"github.com/spf13/cobra"
)

var recordsOpts struct {
	cloudContext string
	output       string
	refresh      bool
}

// recordsCmd prints the mirror records of a kind.
var recordsCmd = &cobra.Command{
	Use:   "records <kind>",
	Short: "Print the mirror records of <kind>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		kind := mirror.Kind(args[0])
		if _, err = kinds.Get(kind); err != nil {
			return err
		}
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, e.close())
		}()
		ctx := cmd.Context()
		cloudContexts, err := e.cloudContexts(recordsOpts.cloudContext)
		if err != nil {
			return err
		}
		for _, cc := range cloudContexts {
			if recordsOpts.refresh {
				if _, err = e.reconciler.Reconcile(ctx, kind, cc, mirror.ListParams{}, true); err != nil {
					return err
				}
			}
			recs, err := e.store.LoadAll(ctx, kind, cc)
			if err != nil {
				return err
			}
			if err = printRecords(os.Stdout, recs, recordsOpts.output); err != nil {
				return err
			}
		}
		return nil
	},
}

func printRecords(w io.Writer, recs []*mirror.Record, output string) error {
	switch output {
	case "keys":
		for _, rec := range recs {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", rec.CloudContext, rec.Key(), rec.Changed.Format(time.RFC3339)); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		for _, rec := range recs {
			out, err := objutil.ToYAML(rec)
			if err != nil {
				return err
			}
			if _, err = fmt.Fprintf(w, "---\n%s", out); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q, use keys or yaml", output)
	}
}

func init() {
	RootCmd.AddCommand(recordsCmd)
	flags := recordsCmd.Flags()
	flags.StringVar(&recordsOpts.cloudContext, "cloud-context", "", "cloud context to print, all configured ones if empty")
	flags.StringVarP(&recordsOpts.output, "output", "o", "keys", "output format: keys or yaml")
	flags.BoolVar(&recordsOpts.refresh, "refresh", false, "reconcile the kind before printing")
}
