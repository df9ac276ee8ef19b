// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/gardener/cloud-mirror/mirror/server"
	"github.com/gardener/cloud-mirror/mirror/timescheduler"

	"github.com/spf13/cobra"
)

var projectsFile string

// scheduleCmd evaluates every schedule target once.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Evaluate the resource quota schedule of all projects once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, e.close())
		}()
		path := projectsFile
		if path == "" {
			path = e.cfg.Scheduler.ProjectsFile
		}
		if path == "" {
			return errors.New("no projects file: set --projects or scheduler.projectsFile")
		}
		loc, err := server.Location(e.cfg.Scheduler.TimeZone)
		if err != nil {
			return err
		}
		sched := timescheduler.New(timescheduler.Args{
			Projects:  timescheduler.NewFileProjectStore(path),
			Clients:   e.clients,
			Store:     e.store,
			Refresher: e.reconciler,
			Location:  loc,
		})
		if err = sched.Run(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Schedule evaluated")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVarP(&projectsFile, "projects", "p", "", "path to the projects file - overrides scheduler.projectsFile")
}
