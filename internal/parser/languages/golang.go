package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *parser.Registry) {
	r.Register(&parser.Language{
		Name:       "go",
		Extensions: []string{"go"},
		Sitter:     golang.GetLanguage(),
		Classify: func(nodeType string) parser.NodeCategory {
			switch nodeType {
			case "function_declaration", "method_declaration":
				return parser.CategoryFunction
			case "type_declaration":
				return parser.CategoryClass
			case "import_spec":
				return parser.CategoryImport
			case "call_expression":
				return parser.CategoryCall
			default:
				return parser.CategoryNone
			}
		},
		Identifiers: []string{"identifier", "field_identifier", "type_identifier"},
		Kinds: map[string]string{
			"method_declaration": "method",
			"type_declaration":   "type",
		},
	})
}
