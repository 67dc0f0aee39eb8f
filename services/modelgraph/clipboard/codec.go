// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clipboard

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AleutianAI/modelgraph/services/modelgraph/model"
	"github.com/AleutianAI/modelgraph/services/modelgraph/transfer"
	"github.com/AleutianAI/modelgraph/services/modelgraph/uid"
)

// CodecVersion is written into every encoded container.
const CodecVersion = 1

type containerDTO struct {
	Version int        `msgpack:"v"`
	Entries []entryDTO `msgpack:"e"`
}

type entryDTO struct {
	Root    bool       `msgpack:"r"`
	Element elementDTO `msgpack:"x"`
}

type memberDTO struct {
	Kind        int    `msgpack:"k"`
	Visibility  int    `msgpack:"v"`
	Declaration string `msgpack:"d"`
}

type endDTO struct {
	Name        string `msgpack:"n,omitempty"`
	Cardinality string `msgpack:"c,omitempty"`
	Navigable   bool   `msgpack:"nav,omitempty"`
	Kind        int    `msgpack:"k,omitempty"`
}

type elementDTO struct {
	Relation    bool     `msgpack:"rel,omitempty"`
	Kind        string   `msgpack:"kind"`
	UID         []byte   `msgpack:"id"`
	Name        string   `msgpack:"name,omitempty"`
	Stereotypes []string `msgpack:"st,omitempty"`
	Flags       uint32   `msgpack:"fl,omitempty"`

	Unloaded           bool        `msgpack:"unl,omitempty"`
	Namespace          string      `msgpack:"ns,omitempty"`
	TemplateParameters []string    `msgpack:"tp,omitempty"`
	Members            []memberDTO `msgpack:"mem,omitempty"`
	Variety            string      `msgpack:"var,omitempty"`
	ShapeEditable      bool        `msgpack:"shape,omitempty"`
	LastModified       int64       `msgpack:"mod,omitempty"`

	EndA      []byte  `msgpack:"a,omitempty"`
	EndB      []byte  `msgpack:"b,omitempty"`
	Direction int     `msgpack:"dir,omitempty"`
	AssocA    *endDTO `msgpack:"aa,omitempty"`
	AssocB    *endDTO `msgpack:"ab,omitempty"`

	Children  []elementDTO `msgpack:"ch,omitempty"`
	Relations []elementDTO `msgpack:"rs,omitempty"`
}

// Encode serializes a container with MessagePack. UIDs, root flags and
// every kind-specific field are kept, so Decode yields an identical
// snapshot.
func Encode(c *transfer.Container) ([]byte, error) {
	dto := containerDTO{Version: CodecVersion}
	for _, e := range c.Entries() {
		dto.Entries = append(dto.Entries, entryDTO{Root: e.Root, Element: toDTO(e.Element)})
	}
	data, err := msgpack.Marshal(&dto)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return data, nil
}

// Decode restores a container written by Encode.
//
// Outputs:
//
//	*transfer.Container - Detached elements with their original UIDs.
//	error - ErrUnsupportedVersion or ErrCorrupt.
func Decode(data []byte) (*transfer.Container, error) {
	var dto containerDTO
	if err := msgpack.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if dto.Version != CodecVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, dto.Version)
	}
	c := &transfer.Container{}
	for i, entry := range dto.Entries {
		e, err := fromDTO(entry.Element)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		c.SubmitEntry(transfer.Entry{Element: e, Root: entry.Root})
	}
	return c, nil
}

// dtoBuilder fills the kind-specific part of a DTO.
type dtoBuilder struct {
	dto *elementDTO
}

func toDTO(e model.Element) elementDTO {
	dto := elementDTO{
		UID:         e.UID().Bytes(),
		Stereotypes: e.Stereotypes(),
		Flags:       uint32(e.Flags()),
	}
	e.Accept(&dtoBuilder{dto: &dto})
	return dto
}

func (b *dtoBuilder) object(o *model.Object) {
	b.dto.Kind = o.Kind().String()
	b.dto.Name = o.Name()
	b.dto.Unloaded = o.IsUnloaded()
	for _, child := range o.Children() {
		b.dto.Children = append(b.dto.Children, toDTO(child))
	}
	for _, r := range o.Relations() {
		b.dto.Relations = append(b.dto.Relations, toDTO(r))
	}
}

func (b *dtoBuilder) VisitPackage(o *model.Object) { b.object(o) }

func (b *dtoBuilder) VisitClass(o *model.Object) {
	b.object(o)
	if d := o.Class; d != nil {
		b.dto.Namespace = d.Namespace
		b.dto.TemplateParameters = d.TemplateParameters
		for _, m := range d.Members {
			b.dto.Members = append(b.dto.Members, memberDTO{
				Kind:        int(m.Kind),
				Visibility:  int(m.Visibility),
				Declaration: m.Declaration,
			})
		}
	}
}

func (b *dtoBuilder) VisitComponent(o *model.Object) { b.object(o) }

func (b *dtoBuilder) diagram(o *model.Object) {
	b.object(o)
	if o.Diagram != nil && !o.Diagram.LastModified.IsZero() {
		b.dto.LastModified = o.Diagram.LastModified.UnixNano()
	}
}

func (b *dtoBuilder) VisitDiagram(o *model.Object) { b.diagram(o) }

func (b *dtoBuilder) VisitCanvasDiagram(o *model.Object) { b.diagram(o) }

func (b *dtoBuilder) VisitItem(o *model.Object) {
	b.object(o)
	if o.Item != nil {
		b.dto.Variety = o.Item.Variety
		b.dto.ShapeEditable = o.Item.ShapeEditable
	}
}

func (b *dtoBuilder) relation(r *model.Relation) {
	b.dto.Relation = true
	b.dto.Kind = r.Kind().String()
	b.dto.Name = r.Name()
	b.dto.EndA = r.EndA().Bytes()
	b.dto.EndB = r.EndB().Bytes()
}

func (b *dtoBuilder) VisitDependency(r *model.Relation) {
	b.relation(r)
	if r.Dependency != nil {
		b.dto.Direction = int(r.Dependency.Direction)
	}
}

func (b *dtoBuilder) VisitInheritance(r *model.Relation) { b.relation(r) }

func (b *dtoBuilder) VisitAssociation(r *model.Relation) {
	b.relation(r)
	if d := r.Association; d != nil {
		b.dto.AssocA = &endDTO{Name: d.A.Name, Cardinality: d.A.Cardinality, Navigable: d.A.Navigable, Kind: int(d.A.Kind)}
		b.dto.AssocB = &endDTO{Name: d.B.Name, Cardinality: d.B.Cardinality, Navigable: d.B.Navigable, Kind: int(d.B.Kind)}
	}
}

func fromDTO(dto elementDTO) (model.Element, error) {
	id, err := uid.FromBytes(dto.UID)
	if err != nil {
		return nil, fmt.Errorf("%w: uid: %v", ErrCorrupt, err)
	}
	if dto.Relation {
		return relationFromDTO(dto, id)
	}
	return objectFromDTO(dto, id)
}

func objectFromDTO(dto elementDTO, id uid.UID) (*model.Object, error) {
	kind, err := model.ParseObjectKind(dto.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	o := model.NewObjectWithUID(kind, id, dto.Name)
	o.SetStereotypes(dto.Stereotypes)
	o.SetFlags(model.Flags(dto.Flags))
	o.SetUnloaded(dto.Unloaded)

	switch {
	case o.Class != nil:
		o.Class.Namespace = dto.Namespace
		o.Class.TemplateParameters = dto.TemplateParameters
		for _, m := range dto.Members {
			o.Class.Members = append(o.Class.Members, model.Member{
				Kind:        model.MemberKind(m.Kind),
				Visibility:  model.Visibility(m.Visibility),
				Declaration: m.Declaration,
			})
		}
	case o.Item != nil:
		o.Item.Variety = dto.Variety
		o.Item.ShapeEditable = dto.ShapeEditable
	case o.Diagram != nil:
		if dto.LastModified != 0 {
			o.Diagram.LastModified = time.Unix(0, dto.LastModified).UTC()
		}
	}

	for _, c := range dto.Children {
		if c.Relation {
			return nil, fmt.Errorf("%w: relation %x listed as child", ErrCorrupt, c.UID)
		}
		child, err := fromDTO(c)
		if err != nil {
			return nil, err
		}
		o.InsertChild(-1, child.(*model.Object))
	}
	for _, r := range dto.Relations {
		if !r.Relation {
			return nil, fmt.Errorf("%w: object %x listed as relation", ErrCorrupt, r.UID)
		}
		rel, err := fromDTO(r)
		if err != nil {
			return nil, err
		}
		o.InsertRelation(-1, rel.(*model.Relation))
	}
	return o, nil
}

func relationFromDTO(dto elementDTO, id uid.UID) (*model.Relation, error) {
	kind, err := model.ParseRelationKind(dto.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	a, err := uid.FromBytes(dto.EndA)
	if err != nil {
		return nil, fmt.Errorf("%w: end a: %v", ErrCorrupt, err)
	}
	b, err := uid.FromBytes(dto.EndB)
	if err != nil {
		return nil, fmt.Errorf("%w: end b: %v", ErrCorrupt, err)
	}
	r := model.NewRelationWithUID(kind, id, a, b)
	r.SetName(dto.Name)
	r.SetStereotypes(dto.Stereotypes)
	r.SetFlags(model.Flags(dto.Flags))
	if r.Dependency != nil {
		r.Dependency.Direction = model.Direction(dto.Direction)
	}
	if r.Association != nil {
		if dto.AssocA != nil {
			r.Association.A = endFromDTO(*dto.AssocA)
		}
		if dto.AssocB != nil {
			r.Association.B = endFromDTO(*dto.AssocB)
		}
	}
	return r, nil
}

func endFromDTO(d endDTO) model.AssociationEnd {
	return model.AssociationEnd{
		Name:        d.Name,
		Cardinality: d.Cardinality,
		Navigable:   d.Navigable,
		Kind:        model.EndKind(d.Kind),
	}
}
