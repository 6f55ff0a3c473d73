// Package schema describes a Packet Schema declaration — the set of
// component fields a SnapshotPacket/DeltaPacket pair carries — and
// renders it to Go source via text/template, the way
// cmd/packetgen uses it. The template itself is the packetTemplate
// string constant in this file.
package schema

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"text/template"
)

// Field declares one replicated component carried by a packet. Type is
// the Go type of the full value (e.g. "components.Position"); DeltaType
// is the Go type of its delta (e.g. "components.DeltaPosition"), which
// the caller declares and the template uses for the delta mask field
// and the delta codec's type arguments.
type Field struct {
	// Name is the exported Go identifier for this field (e.g. "Positions").
	Name string
	// Type is the fully qualified Go type of the component value.
	Type string
	// DeltaType is the fully qualified Go type of the component's delta value.
	DeltaType string
	// Component is a short lowerCamel identifier used for local variables.
	Component string
}

// Schema is a named packet declaration: a PacketName (e.g.
// "WorldPacket") and its ordered field list.
type Schema struct {
	Package    string
	PacketName string
	Fields     []Field
	// Imports lists additional import paths the field types require
	// (e.g. the package declaring the component types themselves),
	// beyond the five the generated code always needs.
	Imports []string
}

// Generate renders Go source implementing the SnapshotPacket/DeltaPacket
// pair described by s, gofmt-formatted, to w. header, if non-empty, is
// written verbatim before the generated package clause (e.g. a
// "Code generated ... DO NOT EDIT." comment).
func Generate(w io.Writer, s Schema, header string) error {
	tmpl, err := template.New("packet").Funcs(template.FuncMap{
		"title": func(s string) string {
			if s == "" {
				return s
			}
			b := []byte(s)
			if b[0] >= 'a' && b[0] <= 'z' {
				b[0] -= 'a' - 'A'
			}
			return string(b)
		},
	}).Parse(packetTemplate)
	if err != nil {
		return fmt.Errorf("schema: parse template: %w", err)
	}

	var buf bytes.Buffer
	if header != "" {
		buf.WriteString(header)
		buf.WriteString("\n\n")
	}
	if err := tmpl.Execute(&buf, s); err != nil {
		return fmt.Errorf("schema: execute template: %w", err)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("schema: gofmt generated source: %w", err)
	}
	_, err = w.Write(formatted)
	return err
}

const packetTemplate = `package {{.Package}}

import (
	"fmt"

	"github.com/opd-ai/replicate/pkg/bitmask"
	"github.com/opd-ai/replicate/pkg/delta"
	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/netid"
{{range .Imports}}	"{{.}}"
{{end}})

// {{.PacketName}}Snapshot carries a full component snapshot: every
// declared field's presence bitmask and values, aligned to EntitiesID.
type {{.PacketName}}Snapshot struct {
	Frame      uint32
	EntitiesID []netid.ID
{{range .Fields}}	{{.Name}} bitmask.BitMask[{{.Type}}]
{{end}}}

// {{.PacketName}}Delta carries a diff against a prior snapshot frame:
// newly-present entities get full values, changed entities get
// compact per-field deltas.
type {{.PacketName}}Delta struct {
	Frame         uint32
	SnapshotFrame uint32
	EntitiesID    []netid.ID
{{range .Fields}}	New{{.Name}}   bitmask.BitMask[{{.Type}}]
	Delta{{.Name}} bitmask.BitMask[{{.DeltaType}}]
{{end}}}

{{$packet := .PacketName}}
// New{{$packet}}SnapshotFromWorld builds a full snapshot by enumerating
// every NetId-bearing entity and, for each declared field, every
// entity that additionally carries that component.
func New{{$packet}}SnapshotFromWorld(store *engine.World, toNetID func(engine.Entity) (netid.ID, bool), frame uint32{{range .Fields}}, get{{.Name}} func(engine.Entity) ({{.Type}}, bool){{end}}) {{$packet}}Snapshot {
	entitiesID, entities := store.QueryNetIDs(toNetID)

	snap := {{$packet}}Snapshot{Frame: frame, EntitiesID: entitiesID}
{{range .Fields}}
	snap.{{.Name}} = bitmask.New[{{.Type}}](len(entities))
	for i, e := range entities {
		if v, ok := get{{.Name}}(e); ok {
			snap.{{.Name}}.Mask[i] = true
			snap.{{.Name}}.Values = append(snap.{{.Name}}.Values, v)
		}
	}
{{end}}
	return snap
}

// Delta computes the diff from base to cur, per field, using the
// generic delta codec.
func (cur {{$packet}}Snapshot) Delta(base {{$packet}}Snapshot) ({{$packet}}Delta, error) {
	d := {{$packet}}Delta{
		Frame:         cur.Frame,
		SnapshotFrame: base.Frame,
		EntitiesID:    cur.EntitiesID,
	}
{{range .Fields}}
	d.New{{.Name}}, d.Delta{{.Name}} = delta.Diff[{{.Type}}, {{.DeltaType}}](cur.{{.Name}}, base.{{.Name}}, cur.EntitiesID, base.EntitiesID)
{{end}}
	return d, nil
}

// Apply reconstructs a full {{$packet}}Snapshot from base (the
// referenced prior snapshot) and d.
func (d {{$packet}}Delta) Apply(base {{$packet}}Snapshot) ({{$packet}}Snapshot, error) {
	if d.SnapshotFrame != base.Frame {
		return {{$packet}}Snapshot{}, fmt.Errorf("{{$packet}}Delta.Apply: base frame %d does not match snapshot_frame %d", base.Frame, d.SnapshotFrame)
	}

	out := {{$packet}}Snapshot{Frame: d.Frame, EntitiesID: d.EntitiesID}
{{range .Fields}}
	{{.Component}}, err := delta.Apply[{{.Type}}, {{.DeltaType}}](base.{{.Name}}, base.EntitiesID, d.New{{.Name}}, d.Delta{{.Name}}, d.EntitiesID)
	if err != nil {
		return {{$packet}}Snapshot{}, fmt.Errorf("{{$packet}}Delta.Apply: field {{.Name}}: %w", err)
	}
	out.{{.Name}} = {{.Component}}
{{end}}
	return out, nil
}
`
