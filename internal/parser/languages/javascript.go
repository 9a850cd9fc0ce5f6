package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/javascript"
)

func RegisterJavaScript(r *parser.Registry) {
	r.Register(&parser.Language{
		Name:       "javascript",
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		Sitter:     javascript.GetLanguage(),
		Classify:   classifyJS,
		Identifiers: []string{
			"identifier", "property_identifier",
		},
		Kinds: map[string]string{
			"method_definition": "method",
		},
	})
}

// classifyJS is shared with TypeScript, whose grammar is a superset.
func classifyJS(nodeType string) parser.NodeCategory {
	switch nodeType {
	case "function_declaration", "generator_function_declaration", "method_definition":
		return parser.CategoryFunction
	case "class_declaration":
		return parser.CategoryClass
	case "import_statement":
		return parser.CategoryImport
	case "call_expression":
		return parser.CategoryCall
	case "class_heritage":
		return parser.CategoryInherit
	case "export_statement":
		return parser.CategoryExport
	default:
		return parser.CategoryNone
	}
}
