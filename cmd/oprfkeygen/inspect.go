package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/TaceoLabs/oprf-key-registry/bjj"
	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/TaceoLabs/oprf-key-registry/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the durable state of a data directory",
	Long: `Print every key record and the roster stored in a badger data directory
as JSON. Stop the coordinator first; badger holds an exclusive lock.`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		mustBind(viper.GetViper(), cmd, map[string]string{"data_dir": "data-dir"})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("data_dir")
		if dir == "" {
			return fmt.Errorf("data_dir is required")
		}
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("data dir: %w", err)
		}
		store, err := registry.OpenBadgerStore(dir)
		if err != nil {
			return err
		}
		defer store.Close()

		out, err := dump(store)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	inspectCmd.Flags().String("data-dir", "", "badger data directory")
}

type rosterDump struct {
	Peers  []common.Address `json:"peers"`
	Admins []common.Address `json:"admins"`
}

type recordDump struct {
	KeyID                keygen.KeyID          `json:"key_id"`
	Deleted              bool                  `json:"deleted,omitempty"`
	Key                  *keygen.RegisteredKey `json:"key,omitempty"`
	PrevShareCommitments []bjj.Point           `json:"prev_share_commitments,omitempty"`
}

type stateDump struct {
	Roster *rosterDump  `json:"roster"`
	Keys   []recordDump `json:"keys"`
}

func dump(store registry.Store) (*stateDump, error) {
	records, err := store.LoadRecords()
	if err != nil {
		return nil, err
	}
	roster, err := store.LoadRoster()
	if err != nil {
		return nil, err
	}

	out := &stateDump{Keys: []recordDump{}}
	if roster != nil {
		out.Roster = &rosterDump{Peers: roster.Peers, Admins: roster.Admins}
	}
	ids := make([]keygen.KeyID, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		rec := records[id]
		out.Keys = append(out.Keys, recordDump{
			KeyID:                id,
			Deleted:              rec.Deleted,
			Key:                  rec.Key,
			PrevShareCommitments: rec.PrevShareCommitments,
		})
	}
	return out, nil
}
