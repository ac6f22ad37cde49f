package contextdoc

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/patchllm/cli/cmd/patchllm/cli/jsonutil"
	"github.com/patchllm/cli/cmd/patchllm/cli/scope"
)

// Export serializes the document to w. The format is loss-free: Import
// of the produced bytes yields an equivalent document with identical
// content hashes.
func (d *Document) Export(w io.Writer) error {
	data, err := jsonutil.MarshalNoEscape(d)
	if err != nil {
		return fmt.Errorf("failed to export context document: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write context document: %w", err)
	}
	return nil
}

// Import rehydrates a document previously produced by Export. Hashes are
// recomputed and verified so a corrupted export is caught at the boundary.
func Import(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode context document: %w", err)
	}
	for _, f := range doc.Files {
		if got := scope.HashContent(f.Content); got != f.Hash {
			return nil, fmt.Errorf("context document corrupt: hash mismatch for %s", f.Path)
		}
	}
	return &doc, nil
}
