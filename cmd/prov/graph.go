package main

import (
	"fmt"
	"os"
	"strings"

	"provenance-go/internal/research"

	"github.com/spf13/cobra"
)

// writeOutput writes doc to the --output file, or stdout when unset.
func writeOutput(cmd *cobra.Command, doc string) error {
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		_, err := fmt.Print(doc)
		return err
	}
	if err := os.WriteFile(out, []byte(doc), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", out)
	return nil
}

// graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and export assertion graphs",
}

var graphJSONCmd = &cobra.Command{
	Use:   "json PROJECT",
	Short: "Print the project graph as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		assertionType, _ := cmd.Flags().GetString("type")

		a, err := newApp(cmd, "graph json")
		if err != nil {
			return err
		}
		defer a.Close()

		g, err := a.Graphs().ProjectGraph(cmd.Context(), pid, research.AssertionFilter{
			Status:        research.AssertionStatus(status),
			AssertionType: research.AssertionType(assertionType),
		})
		if err != nil {
			return err
		}
		return printJSON(g)
	},
}

var graphGEXFCmd = &cobra.Command{
	Use:   "gexf PROJECT",
	Short: "Export the project graph as GEXF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "graph gexf")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Graphs().GEXF(cmd.Context(), pid)
		if err != nil {
			return err
		}
		return writeOutput(cmd, doc)
	},
}

var graphGraphMLCmd = &cobra.Command{
	Use:   "graphml PROJECT",
	Short: "Export the project graph as GraphML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "graph graphml")
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.Graphs().GraphML(cmd.Context(), pid)
		if err != nil {
			return err
		}
		return writeOutput(cmd, doc)
	},
}

var graphEntityCmd = &cobra.Command{
	Use:   "entity TYPE ID",
	Short: "Show the relationships and graph around one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[1], args[0])
		if err != nil {
			return err
		}
		asGraph, _ := cmd.Flags().GetBool("graph")

		a, err := newApp(cmd, "graph entity")
		if err != nil {
			return err
		}
		defer a.Close()

		if asGraph {
			g, err := a.Graphs().EntityGraph(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			return printJSON(g)
		}

		rels, err := a.Graphs().EntityRelationships(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		if len(rels) == 0 {
			fmt.Println("No relationships.")
			return nil
		}
		for _, r := range rels {
			related := "?"
			if r.RelatedLabel != nil {
				related = *r.RelatedLabel
			}
			arrow := "->"
			if r.Direction == research.DirectionIncoming {
				arrow = "<-"
			}
			fmt.Printf("%-14s  %s %s %s  [%s]\n", r.Source, arrow, r.Predicate, related, r.Status)
		}
		return nil
	},
}

// pack command
var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build and open reproducibility packs",
}

var packBuildCmd = &cobra.Command{
	Use:   "build PROJECT",
	Short: "Build a project's reproducibility pack and store it in the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "pack build")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := a.Context(cmd.Context())
		p, err := a.Packs().Build(ctx, pid)
		if err != nil {
			return err
		}
		key, err := a.Packs().Store(ctx, a.ActorID(), p)
		if err != nil {
			return err
		}
		fmt.Printf("Stored pack %s\n", key)
		fmt.Printf("  snapshots:%d assertions:%d extraction jobs:%d\n", len(p.Snapshots), len(p.Assertions), len(p.Extractions))
		fmt.Printf("  sha256:%s\n", p.PackHash)
		return nil
	},
}

var packOpenCmd = &cobra.Command{
	Use:   "open KEY",
	Short: "Open a stored pack and check its hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "pack open")
		if err != nil {
			return err
		}
		defer a.Close()

		var dec research.DecryptionContext
		if strings.HasSuffix(args[0], ".age") {
			enc := a.Encryptor()
			if enc == nil || !enc.IsConfigured() {
				return fmt.Errorf("pack is encrypted but no pack keys are configured")
			}
			pass, err := readPassphrase("Pack passphrase: ")
			if err != nil {
				return err
			}
			if dec, err = enc.Unlock(pass); err != nil {
				return fmt.Errorf("unlocking pack key: %w", err)
			}
		}

		p, err := a.Packs().Open(cmd.Context(), args[0], dec)
		if err != nil {
			return err
		}
		ok, err := research.VerifyPack(p)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if err := printJSON(p); err != nil {
				return err
			}
		} else {
			fmt.Printf("Project %d, generated %s\n", p.ProjectID, p.GeneratedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  snapshots:%d assertions:%d extraction jobs:%d\n", len(p.Snapshots), len(p.Assertions), len(p.Extractions))
		}
		if !ok {
			return fmt.Errorf("pack hash mismatch")
		}
		fmt.Fprintln(os.Stderr, "Pack hash verified.")
		return nil
	},
}

var packListCmd = &cobra.Command{
	Use:   "list PROJECT",
	Short: "List a project's stored packs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		a, err := newApp(cmd, "pack list")
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.Packs().List(cmd.Context(), pid)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No packs.")
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	graphJSONCmd.Flags().String("status", "", "Restrict to a status")
	graphJSONCmd.Flags().String("type", "", "Restrict to an assertion type")
	graphGEXFCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	graphGraphMLCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	graphEntityCmd.Flags().Bool("graph", false, "Print the entity graph instead of relationships")
	graphCmd.AddCommand(graphJSONCmd, graphGEXFCmd, graphGraphMLCmd, graphEntityCmd)

	packOpenCmd.Flags().Bool("json", false, "Print the full pack")
	packCmd.AddCommand(packBuildCmd, packOpenCmd, packListCmd)

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(packCmd)
}
