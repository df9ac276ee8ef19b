// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/gardener/cloud-mirror/api/mirror"

	"github.com/spf13/cobra"
)

var reconcileOpts struct {
	cloudContext  string
	namespace     string
	labelSelector string
	fieldSelector string
	keepStale     bool
}

// reconcileCmd runs one reconciliation pass over a kind, or over every configured kind.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile <kind>|all",
	Short: "Run a reconciliation pass over <kind> or over all configured kinds",
	Long: `reconcile lists the remote objects of <kind> in the selected cloud contexts, maps them into mirror records
and deletes the records of objects that no longer exist. With "all" every configured kind is reconciled and the
listing selectors are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, e.close())
		}()
		ctx := cmd.Context()
		cloudContexts, err := e.cloudContexts(reconcileOpts.cloudContext)
		if err != nil {
			return err
		}
		if args[0] == "all" {
			var errs []error
			for _, cc := range cloudContexts {
				if err := e.reconciler.ReconcileAll(ctx, cc); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Printf("Reconciled %d kinds in %q\n", len(e.reconciler.Kinds()), cc)
			}
			return errors.Join(errs...)
		}
		kind := mirror.Kind(args[0])
		params := mirror.ListParams{
			Namespace:     reconcileOpts.namespace,
			LabelSelector: reconcileOpts.labelSelector,
			FieldSelector: reconcileOpts.fieldSelector,
		}
		var errs []error
		for _, cc := range cloudContexts {
			ran, err := e.reconciler.Reconcile(ctx, kind, cc, params, !reconcileOpts.keepStale)
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("%s in %q: %w", kind, cc, err))
			case !ran:
				errs = append(errs, fmt.Errorf("%w: %s in %q", mirror.ErrLockHeld, kind, cc))
			default:
				fmt.Printf("Reconciled %s in %q\n", kind, cc)
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	RootCmd.AddCommand(reconcileCmd)
	flags := reconcileCmd.Flags()
	flags.StringVar(&reconcileOpts.cloudContext, "cloud-context", "", "cloud context to reconcile, all configured ones if empty")
	flags.StringVarP(&reconcileOpts.namespace, "namespace", "n", "", "restrict the pass to a namespace")
	flags.StringVarP(&reconcileOpts.labelSelector, "selector", "l", "", "restrict the pass to objects matching a label selector")
	flags.StringVar(&reconcileOpts.fieldSelector, "field-selector", "", "restrict the listing by a field selector, disables stale record deletion")
	flags.BoolVar(&reconcileOpts.keepStale, "keep-stale", false, "keep the records of objects that were not listed")
}
