package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/engine"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <changeset-file> <changeset-file>...",
		Short: "Compose two or more previously produced changesets offline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changesets := make([]*model.MultiFileChangeset, 0, len(args))
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return identerr.New(identerr.InvalidRequest, "cannot read changeset file: "+err.Error()).WithFile(path)
				}
				var cs model.MultiFileChangeset
				if err := json.Unmarshal(content, &cs); err != nil {
					return identerr.New(identerr.InvalidRequest, "cannot parse changeset file: "+err.Error()).WithFile(path)
				}
				changesets = append(changesets, &cs)
			}

			merged, err := engine.New().Merge(changesets)
			if err != nil {
				return err
			}
			return writeJSON(merged)
		},
	}
}
