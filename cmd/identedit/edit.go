package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/engine"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Dry-run compose a changeset from an EditRequest read on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req model.EditRequest
			if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
				return identerr.New(identerr.InvalidRequest, "cannot parse edit request: "+err.Error())
			}
			cs, err := engine.New().Edit(&req)
			if err != nil {
				return err
			}
			return writeJSON(cs)
		},
	}
}
