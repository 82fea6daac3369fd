package main

import (
	"encoding/json"
	"fmt"

	"provenance-go/internal/research"

	"github.com/spf13/cobra"
)

func printSnapshot(s *research.Snapshot) {
	hash := "-"
	if s.Hash != nil {
		hash = (*s.Hash)[:16]
	}
	fmt.Printf("#%d  %-8s  %-30s  items:%d  hash:%s\n", s.ID, s.Status, s.Title, s.ItemCount, hash)
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture and verify immutable snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create PROJECT TITLE",
	Short: "Create an active snapshot to fill by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		draft := research.SnapshotDraft{Title: args[1], Description: optString(cmd, "description")}
		if q := optString(cmd, "query"); q != nil {
			if !json.Valid([]byte(*q)) {
				return fmt.Errorf("query state is not valid JSON")
			}
			draft.QueryState = json.RawMessage(*q)
		}

		a, err := newApp(cmd, "snapshot create")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Snapshots().Create(a.Context(cmd.Context()), pid, a.ActorID(), draft)
		if err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	},
}

var snapshotFreezeCmd = &cobra.Command{
	Use:   "freeze PROJECT COLLECTION",
	Short: "Capture a collection into a frozen snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		cid, err := parseID(args[1], "collection")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot freeze")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Snapshots().FreezeCollection(a.Context(cmd.Context()), pid, cid, a.ActorID())
		if err != nil {
			return err
		}
		printSnapshot(snap)
		if snap.CitationID != nil {
			fmt.Printf("Citation: %s\n", *snap.CitationID)
		}
		return nil
	},
}

var snapshotSealCmd = &cobra.Command{
	Use:   "seal SNAPSHOT",
	Short: "Freeze an active snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot seal")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Snapshots().Freeze(a.Context(cmd.Context()), id, a.ActorID())
		if err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	},
}

var snapshotGetCmd = &cobra.Command{
	Use:   "get SNAPSHOT",
	Short: "Show a snapshot and a page of its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "snapshot get")
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Snapshots().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("snapshot %d not found", id)
		}
		items, err := a.Snapshots().Items(cmd.Context(), id, page, limit)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"snapshot": snap, "items": items})
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list PROJECT",
	Short: "List a project's snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot list")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Snapshots().ProjectSnapshots(cmd.Context(), pid)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, s := range list {
			printSnapshot(s)
		}
		return nil
	},
}

var snapshotAddItemCmd = &cobra.Command{
	Use:   "add-item SNAPSHOT OBJECT",
	Short: "Add an archival item to an active snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		oid, err := parseID(args[1], "object")
		if err != nil {
			return err
		}
		objectType, _ := cmd.Flags().GetString("object-type")

		a, err := newApp(cmd, "snapshot add-item")
		if err != nil {
			return err
		}
		defer a.Close()

		item, err := a.Snapshots().AddItem(a.Context(cmd.Context()), id, research.ItemInput{ObjectID: oid, ObjectType: objectType})
		if err != nil {
			return err
		}
		fmt.Printf("Added object %d to snapshot #%d at position %d\n", item.ObjectID, id, item.SortOrder)
		return nil
	},
}

var snapshotRemoveItemCmd = &cobra.Command{
	Use:   "remove-item SNAPSHOT OBJECT",
	Short: "Remove an archival item from an active snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		oid, err := parseID(args[1], "object")
		if err != nil {
			return err
		}
		objectType, _ := cmd.Flags().GetString("object-type")

		a, err := newApp(cmd, "snapshot remove-item")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Snapshots().RemoveItem(a.Context(cmd.Context()), id, oid, objectType); err != nil {
			return err
		}
		fmt.Printf("Removed object %d from snapshot #%d\n", oid, id)
		return nil
	},
}

var snapshotVerifyCmd = &cobra.Command{
	Use:   "verify [SNAPSHOT]",
	Short: "Recompute snapshot hashes; without an id, every frozen snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "snapshot verify")
		if err != nil {
			return err
		}
		defer a.Close()

		var results []*research.VerifyResult
		if len(args) == 1 {
			id, err := parseID(args[0], "snapshot")
			if err != nil {
				return err
			}
			res, err := a.Snapshots().VerifyHash(cmd.Context(), id)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			results, err = a.Snapshots().VerifyFrozen(cmd.Context())
			if err != nil {
				return err
			}
		}

		bad := 0
		for _, r := range results {
			state := "ok"
			if !r.Valid {
				state = "MISMATCH"
				bad++
			}
			fmt.Printf("#%d  %s\n", r.SnapshotID, state)
		}
		if bad > 0 {
			return fmt.Errorf("%d snapshot(s) failed verification", bad)
		}
		return nil
	},
}

var snapshotCompareCmd = &cobra.Command{
	Use:   "compare A B",
	Short: "Show items added, removed and changed from A to B",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		idA, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		idB, err := parseID(args[1], "snapshot")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot compare")
		if err != nil {
			return err
		}
		defer a.Close()

		cmp, err := a.Snapshots().Compare(a.Context(cmd.Context()), idA, idB)
		if err != nil {
			return err
		}
		for _, it := range cmp.Added {
			fmt.Printf("+ %s %d\n", it.ObjectType, it.ObjectID)
		}
		for _, it := range cmp.Removed {
			fmt.Printf("- %s %d\n", it.ObjectType, it.ObjectID)
		}
		for _, ch := range cmp.Changed {
			fmt.Printf("~ %s %d\n", ch.ObjectType, ch.ObjectID)
		}
		return nil
	},
}

var snapshotArchiveCmd = &cobra.Command{
	Use:   "archive SNAPSHOT",
	Short: "Archive an active snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot archive")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Snapshots().Archive(a.Context(cmd.Context()), id); err != nil {
			return err
		}
		fmt.Printf("Archived snapshot #%d\n", id)
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete SNAPSHOT",
	Short: "Delete a snapshot that is not frozen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Snapshots().Delete(a.Context(cmd.Context()), id); err != nil {
			return err
		}
		fmt.Printf("Deleted snapshot #%d\n", id)
		return nil
	},
}

var snapshotCiteCmd = &cobra.Command{
	Use:   "cite SNAPSHOT",
	Short: "Print the snapshot's citation identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "snapshot")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "snapshot cite")
		if err != nil {
			return err
		}
		defer a.Close()

		cid, err := a.Snapshots().CitationID(a.Context(cmd.Context()), id)
		if err != nil {
			return err
		}
		fmt.Println(cid)
		return nil
	},
}

func init() {
	snapshotCreateCmd.Flags().String("description", "", "Snapshot description")
	snapshotCreateCmd.Flags().String("query", "", "Query state as JSON")
	snapshotGetCmd.Flags().IntP("page", "p", 1, "Items page")
	snapshotGetCmd.Flags().IntP("limit", "n", 25, "Items per page")
	snapshotAddItemCmd.Flags().String("object-type", "", "Object type (default information_object)")
	snapshotRemoveItemCmd.Flags().String("object-type", "", "Object type (default information_object)")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotFreezeCmd, snapshotSealCmd, snapshotGetCmd, snapshotListCmd,
		snapshotAddItemCmd, snapshotRemoveItemCmd, snapshotVerifyCmd, snapshotCompareCmd, snapshotArchiveCmd,
		snapshotDeleteCmd, snapshotCiteCmd)
	rootCmd.AddCommand(snapshotCmd)
}
