// Package document assembles, parses and consumes the portable export
// documents that carry a schema selection between projects.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/refs"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

var (
	// ErrUnsupportedVersion marks a document whose version the engine cannot
	// read.
	ErrUnsupportedVersion = errors.New("unsupported export document version")

	// ErrAmbiguousRoot marks a version 1 document in which more than one item
	// type qualifies as the traversal root.
	ErrAmbiguousRoot = errors.New("ambiguous root item type")

	// ErrNoRoot marks a version 1 document in which no item type qualifies as
	// the traversal root.
	ErrNoRoot = errors.New("no root item type")
)

// Parse decodes and validates an export document. Version 2 documents carry
// their traversal root; for version 1 documents the root is re-derived so that
// re-opening the same export regenerates the same traversal. The returned file
// always has RootItemTypeID set.
func Parse(data []byte) (*core.ExportFile, error) {
	var file core.ExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding export document: %w", err)
	}

	// Index the entities; NewDocumentSource also validates each record.
	src, err := source.NewDocumentSource(&file)
	if err != nil {
		return nil, fmt.Errorf("invalid export document: %w", err)
	}

	switch file.Version {
	case core.ExportVersion2:
		if file.RootItemTypeID == "" {
			return nil, fmt.Errorf("version 2 document missing rootItemTypeId")
		}
		if _, err := src.ItemType(context.Background(), file.RootItemTypeID); err != nil {
			return nil, fmt.Errorf("root item type %q not part of the document", file.RootItemTypeID)
		}
	case core.ExportVersion1:
		root, err := DeriveRoot(src)
		if err != nil {
			return nil, err
		}
		file.RootItemTypeID = root
	default:
		return nil, fmt.Errorf("version %q: %w", file.Version, ErrUnsupportedVersion)
	}

	return &file, nil
}

// DeriveRoot finds the traversal root of a version 1 document: the item type at
// which no link or block validator of a different item type points.
// Self-references do not disqualify a candidate. More than one candidate makes
// the document invalid.
func DeriveRoot(src *source.DocumentSource) (string, error) {
	ctx := context.Background()
	itemTypes, err := src.ItemTypes(ctx)
	if err != nil {
		return "", err
	}

	referenced := make(map[string]bool)
	for _, it := range itemTypes {
		fields, err := src.Fields(ctx, it.ID)
		if err != nil {
			return "", err
		}
		for _, f := range fields {
			for _, id := range refs.LinkedItemTypeIDs(f) {
				if id != it.ID {
					referenced[id] = true
				}
			}
		}
	}

	var candidates []string
	for _, it := range itemTypes {
		if !referenced[it.ID] {
			candidates = append(candidates, it.ID)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", ErrNoRoot
	default:
		return "", fmt.Errorf("%d candidates: %w", len(candidates), ErrAmbiguousRoot)
	}
}
