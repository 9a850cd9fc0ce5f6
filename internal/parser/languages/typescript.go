package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *parser.Registry) {
	r.Register(&parser.Language{
		Name:       "typescript",
		Extensions: []string{"ts", "tsx"},
		Sitter:     typescript.GetLanguage(),
		Classify: func(nodeType string) parser.NodeCategory {
			switch nodeType {
			case "interface_declaration", "type_alias_declaration", "abstract_class_declaration":
				return parser.CategoryClass
			case "extends_clause":
				return parser.CategoryInherit
			case "implements_clause":
				return parser.CategoryImplements
			default:
				return classifyJS(nodeType)
			}
		},
		Identifiers: []string{
			"identifier", "property_identifier", "type_identifier",
		},
		Kinds: map[string]string{
			"method_definition":      "method",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
		},
	})
}
