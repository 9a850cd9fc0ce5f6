package languages

import (
	"scribe/internal/parser"

	"github.com/smacker/go-tree-sitter/python"
)

func RegisterPython(r *parser.Registry) {
	r.Register(&parser.Language{
		Name:       "python",
		Extensions: []string{"py", "pyi"},
		Sitter:     python.GetLanguage(),
		Classify: func(nodeType string) parser.NodeCategory {
			switch nodeType {
			case "function_definition":
				return parser.CategoryFunction
			case "class_definition":
				return parser.CategoryClass
			case "import_statement", "import_from_statement":
				return parser.CategoryImport
			case "call":
				return parser.CategoryCall
			default:
				return parser.CategoryNone
			}
		},
		Identifiers: []string{"identifier"},
	})
}
