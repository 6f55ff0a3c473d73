// Command packetgen renders a Packet Schema declaration to Go source.
// It is invoked via go:generate from pkg/replication/doc.go; the demo
// schema (positions, colors) is built in, matching the reference
// packet checked in at pkg/replication/packet_gen.go.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/opd-ai/replicate/pkg/schema"
)

const generatedHeader = "// Code generated by cmd/packetgen. DO NOT EDIT."

func demoSchema(pkg string) schema.Schema {
	return schema.Schema{
		Package:    pkg,
		PacketName: "World",
		Fields: []schema.Field{
			{Name: "Positions", Type: "components.Position", DeltaType: "components.DeltaPosition", Component: "positions"},
			{Name: "Colors", Type: "components.Color", DeltaType: "components.Unit", Component: "colors"},
		},
		Imports: []string{"github.com/opd-ai/replicate/pkg/components"},
	}
}

func main() {
	out := flag.String("out", "", "output file path (default: stdout)")
	pkg := flag.String("package", "replication", "generated package name")
	flag.Parse()

	s := demoSchema(*pkg)
	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "packetgen: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	if err := schema.Generate(w, s, generatedHeader); err != nil {
		fmt.Fprintf(os.Stderr, "packetgen: %v\n", err)
		os.Exit(1)
	}
}
