package yamlstrict

import (
	"bytes"
	"io"

	"gopkg.in/yaml.v3"
)

// singleDocument decodes exactly one YAML document from data into root and
// fails if a second document follows. yaml.v3's Decoder silently stops at
// the first "---" unless Decode is called again, so a multi-document
// stream that is never re-decoded would otherwise pass through unnoticed
// (spec.md §4.2: "a pack file containing a YAML stream with more than one
// document MUST be rejected").
func singleDocument(data []byte) (*yaml.Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return nil, newErr(ErrSyntax, 0, "empty document")
		}
		return nil, newErr(ErrSyntax, 0, "%v", err)
	}
	var second yaml.Node
	if err := dec.Decode(&second); err != io.EOF {
		if err == nil {
			return nil, newErr(ErrMultiDocument, second.Line, "input contains more than one YAML document")
		}
		return nil, newErr(ErrSyntax, 0, "%v", err)
	}
	return &root, nil
}
