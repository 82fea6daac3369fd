package research

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const gexfCreator = "provenance-go research graph"

// xmlEscaper escapes the five XML special characters using named entities.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// ExportGEXF renders g as a GEXF 1.3 document.
func ExportGEXF(g *Graph, projectID int64, modified time.Time) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gexf xmlns="http://gexf.net/1.3" version="1.3">` + "\n")
	fmt.Fprintf(&b, "  <meta lastmodifieddate=\"%s\">\n", modified.Format("2006-01-02"))
	fmt.Fprintf(&b, "    <creator>%s</creator>\n", gexfCreator)
	fmt.Fprintf(&b, "    <description>Research assertion graph for project %d</description>\n", projectID)
	b.WriteString("  </meta>\n")
	b.WriteString(`  <graph defaultedgetype="directed">` + "\n")

	b.WriteString(`    <attributes class="node">` + "\n")
	b.WriteString(`      <attribute id="0" title="type" type="string"/>` + "\n")
	b.WriteString(`      <attribute id="1" title="group" type="string"/>` + "\n")
	b.WriteString("    </attributes>\n")
	b.WriteString(`    <attributes class="edge">` + "\n")
	b.WriteString(`      <attribute id="0" title="assertion_type" type="string"/>` + "\n")
	b.WriteString(`      <attribute id="1" title="status" type="string"/>` + "\n")
	b.WriteString(`      <attribute id="2" title="confidence" type="float"/>` + "\n")
	b.WriteString("    </attributes>\n")

	b.WriteString("    <nodes>\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "      <node id=\"%s\" label=\"%s\">\n", xmlEscape(n.ID), xmlEscape(n.Label))
		b.WriteString("        <attvalues>\n")
		fmt.Fprintf(&b, "          <attvalue for=\"0\" value=\"%s\"/>\n", xmlEscape(n.Type))
		fmt.Fprintf(&b, "          <attvalue for=\"1\" value=\"%d\"/>\n", n.Group)
		b.WriteString("        </attvalues>\n")
		b.WriteString("      </node>\n")
	}
	b.WriteString("    </nodes>\n")

	b.WriteString("    <edges>\n")
	for i, e := range g.Edges {
		fmt.Fprintf(&b, "      <edge id=\"%d\" source=\"%s\" target=\"%s\" label=\"%s\">\n",
			i, xmlEscape(e.Source), xmlEscape(e.Target), xmlEscape(e.Label))
		b.WriteString("        <attvalues>\n")
		fmt.Fprintf(&b, "          <attvalue for=\"0\" value=\"%s\"/>\n", xmlEscape(e.Type))
		fmt.Fprintf(&b, "          <attvalue for=\"1\" value=\"%s\"/>\n", xmlEscape(e.Status))
		if e.Confidence != nil {
			fmt.Fprintf(&b, "          <attvalue for=\"2\" value=\"%s\"/>\n", formatConfidence(*e.Confidence))
		}
		b.WriteString("        </attvalues>\n")
		b.WriteString("      </edge>\n")
	}
	b.WriteString("    </edges>\n")

	b.WriteString("  </graph>\n")
	b.WriteString("</gexf>\n")
	return b.String()
}

// ExportGraphML renders g as a GraphML document.
func ExportGraphML(g *Graph) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<graphml xmlns="http://graphml.graphdrawing.org/xmlns"` + "\n")
	b.WriteString(`  xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` + "\n")
	b.WriteString(`  xsi:schemaLocation="http://graphml.graphdrawing.org/xmlns http://graphml.graphdrawing.org/xmlns/1.0/graphml.xsd">` + "\n")

	b.WriteString(`  <key id="d0" for="node" attr.name="type" attr.type="string"/>` + "\n")
	b.WriteString(`  <key id="d1" for="node" attr.name="label" attr.type="string"/>` + "\n")
	b.WriteString(`  <key id="d2" for="node" attr.name="group" attr.type="string"/>` + "\n")
	b.WriteString(`  <key id="d3" for="edge" attr.name="label" attr.type="string"/>` + "\n")
	b.WriteString(`  <key id="d4" for="edge" attr.name="assertion_type" attr.type="string"/>` + "\n")
	b.WriteString(`  <key id="d5" for="edge" attr.name="status" attr.type="string"/>` + "\n")
	b.WriteString(`  <key id="d6" for="edge" attr.name="confidence" attr.type="double"/>` + "\n")

	b.WriteString(`  <graph id="G" edgedefault="directed">` + "\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "    <node id=\"%s\">\n", xmlEscape(n.ID))
		fmt.Fprintf(&b, "      <data key=\"d0\">%s</data>\n", xmlEscape(n.Type))
		fmt.Fprintf(&b, "      <data key=\"d1\">%s</data>\n", xmlEscape(n.Label))
		fmt.Fprintf(&b, "      <data key=\"d2\">%d</data>\n", n.Group)
		b.WriteString("    </node>\n")
	}
	for i, e := range g.Edges {
		fmt.Fprintf(&b, "    <edge id=\"e%d\" source=\"%s\" target=\"%s\">\n", i, xmlEscape(e.Source), xmlEscape(e.Target))
		fmt.Fprintf(&b, "      <data key=\"d3\">%s</data>\n", xmlEscape(e.Label))
		fmt.Fprintf(&b, "      <data key=\"d4\">%s</data>\n", xmlEscape(e.Type))
		fmt.Fprintf(&b, "      <data key=\"d5\">%s</data>\n", xmlEscape(e.Status))
		if e.Confidence != nil {
			fmt.Fprintf(&b, "      <data key=\"d6\">%s</data>\n", formatConfidence(*e.Confidence))
		}
		b.WriteString("    </edge>\n")
	}
	b.WriteString("  </graph>\n")
	b.WriteString("</graphml>\n")
	return b.String()
}
