package main

import (
	"fmt"

	"provenance-go/internal/research"

	"github.com/spf13/cobra"
)

// printAssertions writes one line per assertion.
func printAssertions(list []*research.Assertion) {
	if len(list) == 0 {
		fmt.Println("No assertions.")
		return
	}
	for _, a := range list {
		object := "?"
		switch {
		case a.ObjectLabel != nil:
			object = *a.ObjectLabel
		case a.ObjectValue != nil:
			object = *a.ObjectValue
		case a.HasEntityObject():
			object = fmt.Sprintf("%s #%d", *a.ObjectType, *a.ObjectID)
		}
		fmt.Printf("#%d  %-10s  %s:%d  %s  %s  v%d  evidence:%d\n",
			a.ID, a.Status, a.SubjectType, a.SubjectID, a.Predicate, object, a.Version, a.EvidenceCount)
	}
}

// assertion command
var assertionCmd = &cobra.Command{
	Use:   "assertion",
	Short: "Author and review assertions",
}

var assertionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an assertion",
	RunE: func(cmd *cobra.Command, args []string) error {
		subjectType, _ := cmd.Flags().GetString("subject-type")
		subjectID, _ := cmd.Flags().GetInt64("subject-id")
		predicate, _ := cmd.Flags().GetString("predicate")
		assertionType, _ := cmd.Flags().GetString("type")

		a, err := newApp(cmd, "assertion create")
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.Assertions().Create(a.Context(cmd.Context()), a.ActorID(), research.Claim{
			ProjectID:     optInt64(cmd, "project"),
			SubjectType:   subjectType,
			SubjectID:     subjectID,
			SubjectLabel:  optString(cmd, "subject-label"),
			Predicate:     predicate,
			ObjectValue:   optString(cmd, "value"),
			ObjectType:    optString(cmd, "object-type"),
			ObjectID:      optInt64(cmd, "object-id"),
			ObjectLabel:   optString(cmd, "object-label"),
			AssertionType: research.AssertionType(assertionType),
			Confidence:    optFloat(cmd, "confidence"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created assertion #%d\n", created.ID)
		return nil
	},
}

var assertionGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show an assertion and its evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "assertion")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "assertion get")
		if err != nil {
			return err
		}
		defer a.Close()

		found, evidence, err := a.Assertions().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("assertion %d not found", id)
		}
		return printJSON(map[string]any{"assertion": found, "evidence": evidence})
	},
}

var assertionUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Revise an assertion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "assertion")
		if err != nil {
			return err
		}
		u := research.AssertionUpdate{
			SubjectLabel: optString(cmd, "subject-label"),
			Predicate:    optString(cmd, "predicate"),
			ObjectValue:  optString(cmd, "value"),
			ObjectType:   optString(cmd, "object-type"),
			ObjectID:     optInt64(cmd, "object-id"),
			ObjectLabel:  optString(cmd, "object-label"),
			Confidence:   optFloat(cmd, "confidence"),
		}
		if t := optString(cmd, "type"); t != nil {
			at := research.AssertionType(*t)
			u.AssertionType = &at
		}
		if cmd.Flags().Changed("expect-version") {
			v, _ := cmd.Flags().GetInt("expect-version")
			u.ExpectedVersion = &v
		}

		a, err := newApp(cmd, "assertion update")
		if err != nil {
			return err
		}
		defer a.Close()

		updated, err := a.Assertions().Update(a.Context(cmd.Context()), id, u)
		if err != nil {
			return err
		}
		fmt.Printf("Assertion #%d now at version %d\n", updated.ID, updated.Version)
		return nil
	},
}

var assertionStatusCmd = &cobra.Command{
	Use:   "status ID STATUS",
	Short: "Set an assertion's status (proposed, verified, disputed, retracted)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "assertion")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "assertion status")
		if err != nil {
			return err
		}
		defer a.Close()

		updated, err := a.Assertions().UpdateStatus(a.Context(cmd.Context()), id, research.AssertionStatus(args[1]), a.ActorID())
		if err != nil {
			return err
		}
		fmt.Printf("Assertion #%d is %s\n", updated.ID, updated.Status)
		return nil
	},
}

var assertionConflictsCmd = &cobra.Command{
	Use:   "conflicts ID",
	Short: "List assertions that contradict this one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "assertion")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "assertion conflicts")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Assertions().DetectConflicts(cmd.Context(), id)
		if err != nil {
			return err
		}
		printAssertions(list)
		return nil
	},
}

var assertionSearchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Search assertion labels, predicates and values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		a, err := newApp(cmd, "assertion search")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Assertions().Search(cmd.Context(), args[0], research.AssertionFilter{
			ProjectID: optInt64(cmd, "project"),
			Status:    research.AssertionStatus(status),
		})
		if err != nil {
			return err
		}
		printAssertions(list)
		return nil
	},
}

var assertionSubjectCmd = &cobra.Command{
	Use:   "subject TYPE ID",
	Short: "List every assertion about a subject",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1], args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "assertion subject")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Assertions().SubjectAssertions(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		printAssertions(list)
		return nil
	},
}

var assertionListCmd = &cobra.Command{
	Use:   "list PROJECT",
	Short: "List a project's assertions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		assertionType, _ := cmd.Flags().GetString("type")
		predicate, _ := cmd.Flags().GetString("predicate")

		a, err := newApp(cmd, "assertion list")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Assertions().ProjectAssertions(cmd.Context(), pid, research.AssertionFilter{
			Status:        research.AssertionStatus(status),
			AssertionType: research.AssertionType(assertionType),
			Predicate:     predicate,
		})
		if err != nil {
			return err
		}
		printAssertions(list)
		return nil
	},
}

// evidence command
var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Attach and detach evidence",
}

var evidenceAddCmd = &cobra.Command{
	Use:   "add ASSERTION SOURCE_TYPE SOURCE_ID",
	Short: "Attach a source to an assertion",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "assertion")
		if err != nil {
			return err
		}
		sourceID, err := parseID(args[2], "source")
		if err != nil {
			return err
		}
		refutes, _ := cmd.Flags().GetBool("refutes")
		rel := research.RelationshipSupports
		if refutes {
			rel = research.RelationshipRefutes
		}

		a, err := newApp(cmd, "evidence add")
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.Assertions().AddEvidence(a.Context(cmd.Context()), id, a.ActorID(), research.EvidenceInput{
			SourceType:   args[1],
			SourceID:     sourceID,
			Relationship: rel,
			Note:         optString(cmd, "note"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added evidence #%d (%s)\n", e.ID, e.Relationship)
		return nil
	},
}

var evidenceRemoveCmd = &cobra.Command{
	Use:   "remove EVIDENCE",
	Short: "Detach evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "evidence")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "evidence remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Assertions().RemoveEvidence(a.Context(cmd.Context()), id, a.ActorID()); err != nil {
			return err
		}
		fmt.Printf("Removed evidence #%d\n", id)
		return nil
	},
}

func init() {
	// Flags shared by create and update.
	for _, c := range []*cobra.Command{assertionCreateCmd, assertionUpdateCmd} {
		c.Flags().String("subject-label", "", "Subject display label")
		c.Flags().String("predicate", "", "Predicate, e.g. born_in")
		c.Flags().String("value", "", "Literal object value")
		c.Flags().String("object-type", "", "Object entity type")
		c.Flags().Int64("object-id", 0, "Object entity id")
		c.Flags().String("object-label", "", "Object display label")
		c.Flags().String("type", "", "Assertion type")
		c.Flags().Float64("confidence", 0, "Confidence between 0 and 1")
	}
	assertionCreateCmd.Flags().Int64("project", 0, "Project id")
	assertionCreateCmd.Flags().String("subject-type", "", "Subject entity type")
	assertionCreateCmd.Flags().Int64("subject-id", 0, "Subject entity id")
	assertionUpdateCmd.Flags().Int("expect-version", 0, "Fail unless the stored version matches")

	assertionSearchCmd.Flags().Int64("project", 0, "Restrict to a project")
	assertionSearchCmd.Flags().String("status", "", "Restrict to a status")
	assertionListCmd.Flags().String("status", "", "Restrict to a status")
	assertionListCmd.Flags().String("type", "", "Restrict to an assertion type")
	assertionListCmd.Flags().String("predicate", "", "Restrict to a predicate")

	assertionCmd.AddCommand(assertionCreateCmd, assertionGetCmd, assertionUpdateCmd, assertionStatusCmd,
		assertionConflictsCmd, assertionSearchCmd, assertionSubjectCmd, assertionListCmd)

	evidenceAddCmd.Flags().Bool("refutes", false, "The source contradicts the assertion")
	evidenceAddCmd.Flags().String("note", "", "Note on the evidence")
	evidenceCmd.AddCommand(evidenceAddCmd, evidenceRemoveCmd)

	rootCmd.AddCommand(assertionCmd)
	rootCmd.AddCommand(evidenceCmd)
}
