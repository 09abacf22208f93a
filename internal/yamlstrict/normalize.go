// Package yamlstrict decodes a deliberately small, unambiguous subset of
// YAML into a jsonstrict.Value, for pack manifests and policy files that
// must canonicalize identically regardless of which tool wrote them.
//
// gopkg.in/yaml.v3 is used strictly as a tokenizer (its Node tree); the
// high-level Unmarshal-into-interface{} path is never used because it
// resolves anchors/aliases and accepts duplicate keys silently. Every
// rejection rule below is enforced by hand while walking the Node tree.
package yamlstrict

import (
	"strconv"

	"github.com/assayhq/assay/internal/jsonstrict"
	"gopkg.in/yaml.v3"
)

var allowedTags = map[string]bool{
	"!!str":  true,
	"!!int":  true,
	"!!bool": true,
	"!!null": true,
	"!!map":  true,
	"!!seq":  true,
}

// Parse decodes data as a single strict YAML document and returns its
// value in jsonstrict's value model, ready for canon.Digest.
func Parse(data []byte) (jsonstrict.Value, error) {
	root, err := singleDocument(data)
	if err != nil {
		return jsonstrict.Value{}, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return jsonstrict.Value{}, newErr(ErrSyntax, root.Line, "expected exactly one document root")
	}
	return convert(root.Content[0])
}

func convert(n *yaml.Node) (jsonstrict.Value, error) {
	if n.Anchor != "" {
		return jsonstrict.Value{}, newErr(ErrAnchorAlias, n.Line, "anchors are not allowed")
	}
	switch n.Kind {
	case yaml.AliasNode:
		return jsonstrict.Value{}, newErr(ErrAnchorAlias, n.Line, "aliases are not allowed")
	case yaml.ScalarNode:
		return convertScalar(n)
	case yaml.SequenceNode:
		return convertSequence(n)
	case yaml.MappingNode:
		return convertMapping(n)
	default:
		return jsonstrict.Value{}, newErr(ErrUnsupported, n.Line, "unsupported node kind %d", n.Kind)
	}
}

func convertScalar(n *yaml.Node) (jsonstrict.Value, error) {
	if n.Tag == "!!float" {
		return jsonstrict.Value{}, newErr(ErrFloatValue, n.Line, "floating-point scalars are not allowed: %q", n.Value)
	}
	if !allowedTags[n.Tag] {
		return jsonstrict.Value{}, newErr(ErrCustomTag, n.Line, "unsupported scalar tag %q", n.Tag)
	}
	switch n.Tag {
	case "!!null":
		return jsonstrict.Null(), nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return jsonstrict.Value{}, newErr(ErrSyntax, n.Line, "invalid bool %q", n.Value)
		}
		return jsonstrict.Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return jsonstrict.Value{}, newErr(ErrSyntax, n.Line, "invalid integer %q", n.Value)
		}
		if i > jsonstrict.MaxSafeInt || i < -jsonstrict.MaxSafeInt {
			return jsonstrict.Value{}, newErr(ErrSyntax, n.Line, "integer %d exceeds safe range", i)
		}
		return jsonstrict.Int(i), nil
	default: // "!!str"
		return jsonstrict.String(n.Value), nil
	}
}

func convertSequence(n *yaml.Node) (jsonstrict.Value, error) {
	if n.Tag != "!!seq" {
		return jsonstrict.Value{}, newErr(ErrCustomTag, n.Line, "unsupported sequence tag %q", n.Tag)
	}
	items := make([]jsonstrict.Value, 0, len(n.Content))
	for _, c := range n.Content {
		v, err := convert(c)
		if err != nil {
			return jsonstrict.Value{}, err
		}
		items = append(items, v)
	}
	return jsonstrict.Array(items), nil
}

func convertMapping(n *yaml.Node) (jsonstrict.Value, error) {
	if n.Tag != "!!map" {
		return jsonstrict.Value{}, newErr(ErrCustomTag, n.Line, "unsupported mapping tag %q", n.Tag)
	}
	obj := &jsonstrict.Object{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		if keyNode.Value == "<<" || keyNode.Tag == "!!merge" {
			return jsonstrict.Value{}, newErr(ErrMergeKey, keyNode.Line, "merge keys (<<) are not allowed")
		}
		if keyNode.Kind != yaml.ScalarNode || keyNode.Tag != "!!str" {
			return jsonstrict.Value{}, newErr(ErrUnsupported, keyNode.Line, "mapping keys must be plain strings")
		}
		key := keyNode.Value
		if seen[key] {
			return jsonstrict.Value{}, newErr(ErrDuplicateKey, keyNode.Line, "duplicate mapping key %q", key)
		}
		seen[key] = true
		val, err := convert(valNode)
		if err != nil {
			return jsonstrict.Value{}, err
		}
		obj.Members = append(obj.Members, jsonstrict.Member{Key: key, Value: val})
	}
	return jsonstrict.ObjectValue(obj), nil
}
