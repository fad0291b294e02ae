// Package extractor turns Sphinx-generated Blender API reference pages into
// structured documentation entries ready for embedding.
package extractor

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry kinds. Every DocEntry carries exactly one of these.
const (
	KindModule   = "module"
	KindClass    = "class"
	KindMethod   = "method"
	KindFunction = "function"
	KindProperty = "property"
	KindConstant = "constant"
)

// Param describes a single documented parameter of a function or method.
type Param struct {
	Name        string
	Type        string
	Description string
}

// DocEntry is one addressable unit of documentation. Path is the
// fully-qualified dotted identifier (e.g. "bpy.ops.mesh.subdivide") and is
// unique within the corpus.
type DocEntry struct {
	Path       string
	Kind       string
	Signature  string
	Summary    string
	FullText   string
	ModulePath string
	Params     []Param
}

var (
	titleModuleRe = regexp.MustCompile(`\b(?:bpy|bmesh|mathutils|aud|bgl|blf|gpu)(?:\.\w+)*\b`)
	paramTypedRe  = regexp.MustCompile(`^(\w+)\s*\(([^)]+)\)\s*–\s*(.+)$`)
	paramBareRe   = regexp.MustCompile(`^(\w+)\s*–\s*(.+)$`)
)

// Extractor parses Sphinx HTML reference pages.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractPage parses one HTML page and returns its documentation entries in
// document order. Pages with no recognizable API elements yield an empty
// slice. Re-extracting the same page yields identical entries.
func (e *Extractor) ExtractPage(r io.Reader, pageName string) ([]DocEntry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageName, err)
	}

	moduleName := extractModuleName(doc)

	var entries []DocEntry
	seen := make(map[string]bool)

	// Module pages get an entry for the module itself so hierarchical
	// listing can resolve intermediate levels.
	if moduleName != "" {
		summary := strings.TrimSpace(doc.Find("section[id^='module-'] > p").First().Text())
		entries = append(entries, buildEntry(DocEntry{
			Path:       moduleName,
			Kind:       KindModule,
			Summary:    summary,
			ModulePath: parentPath(moduleName),
		}))
		seen[moduleName] = true
	}

	// Every documented object carries a signature <dt> with its dotted path
	// as the id attribute. A single pass in document order covers functions,
	// methods, classes, properties and constants alike.
	doc.Find("dt.sig.sig-object.py[id]").Each(func(_ int, dt *goquery.Selection) {
		id, _ := dt.Attr("id")
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		entries = append(entries, extractObject(dt, id, moduleName))
	})

	return entries, nil
}

// extractModuleName finds the dotted module path a page documents, first from
// the module section id, then from the page title.
func extractModuleName(doc *goquery.Document) string {
	if sec := doc.Find("section[id^='module-']").First(); sec.Length() > 0 {
		id, _ := sec.Attr("id")
		return strings.TrimPrefix(id, "module-")
	}

	title := doc.Find("title").First().Text()
	if m := titleModuleRe.FindString(title); m != "" {
		return strings.TrimRight(m, ".")
	}

	return ""
}

// extractObject builds an entry from a signature definition term.
func extractObject(dt *goquery.Selection, id, moduleName string) DocEntry {
	kind := objectKind(dt, id)

	entry := DocEntry{
		Path:       id,
		Kind:       kind,
		ModulePath: moduleParent(id, kind, moduleName),
	}

	if kind != KindProperty && kind != KindConstant {
		entry.Signature = extractSignature(dt)
	}

	// The description lives in the <dd> sibling of the signature term.
	if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
		entry.Summary = strings.TrimSpace(dd.Find("p").First().Text())
		entry.Params = extractParams(dd)

		if kind == KindProperty || kind == KindConstant {
			if typ := extractFieldValue(dd, "Type"); typ != "" {
				if entry.Summary != "" {
					entry.Summary = fmt.Sprintf("%s (Type: %s)", entry.Summary, typ)
				} else {
					entry.Summary = fmt.Sprintf("(Type: %s)", typ)
				}
			}
		}
	}

	return buildEntry(entry)
}

// objectKind classifies a signature term by its enclosing definition list.
// Sphinx wraps each object in <dl class="py function">, <dl class="py class">
// and so on. Pages predating that convention fall back to path heuristics.
func objectKind(dt *goquery.Selection, id string) string {
	if dl := dt.Closest("dl"); dl.Length() > 0 {
		class, _ := dl.Attr("class")
		switch {
		case strings.Contains(class, "class"):
			return KindClass
		case strings.Contains(class, "method"):
			return KindMethod
		case strings.Contains(class, "function"):
			return KindFunction
		case strings.Contains(class, "attribute"), strings.Contains(class, "property"):
			return KindProperty
		case strings.Contains(class, "data"):
			return KindConstant
		}
	}

	if strings.HasPrefix(id, "bpy.types.") && strings.Count(id, ".") == 2 {
		return KindClass
	}
	return KindFunction
}

// moduleParent derives the owning module path for hierarchical listing.
// Properties and methods hang off their class, everything else off the page
// module when known.
func moduleParent(id, kind string, moduleName string) string {
	if kind == KindProperty || kind == KindMethod {
		return parentPath(id)
	}
	if moduleName != "" {
		return moduleName
	}
	return parentPath(id)
}

func parentPath(path string) string {
	if i := strings.LastIndex(path, "."); i > 0 {
		return path[:i]
	}
	return ""
}

// extractSignature assembles the call signature from Sphinx signature spans,
// splicing documented parameters into the paren pair.
func extractSignature(dt *goquery.Selection) string {
	var parts []string
	dt.Find("span.sig-prename, span.sig-name, span.sig-paren").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(s.Text()))
	})
	sig := strings.Join(parts, "")

	var params []string
	dt.Find("em.sig-param").Each(func(_ int, s *goquery.Selection) {
		params = append(params, strings.TrimSpace(s.Text()))
	})
	if len(params) > 0 {
		sig = strings.Replace(sig, "()", "("+strings.Join(params, ", ")+")", 1)
	}

	return sig
}

// extractParams pulls parameter name/type/description triples out of the
// field list following a signature.
func extractParams(dd *goquery.Selection) []Param {
	var params []Param

	dd.Find("dl.field-list > dt").EachWithBreak(func(_ int, fieldDT *goquery.Selection) bool {
		if fieldLabel(fieldDT) != "Parameters" && fieldLabel(fieldDT) != "Parameter" {
			return true
		}
		fieldDT.NextFiltered("dd").Find("ul > li").Each(func(_ int, li *goquery.Selection) {
			if p, ok := parseParamItem(strings.TrimSpace(li.Text())); ok {
				params = append(params, p)
			}
		})
		return false
	})

	return params
}

// parseParamItem parses a single "name (type) – description" list item. The
// dash is the en dash Sphinx emits, not a hyphen.
func parseParamItem(text string) (Param, bool) {
	if m := paramTypedRe.FindStringSubmatch(text); m != nil {
		return Param{Name: m[1], Type: m[2], Description: m[3]}, true
	}
	if m := paramBareRe.FindStringSubmatch(text); m != nil {
		return Param{Name: m[1], Type: "unknown", Description: m[2]}, true
	}
	return Param{}, false
}

// extractFieldValue returns the dd text for a named field-list entry
// ("Type", "Returns", ...) or empty if absent.
func extractFieldValue(dd *goquery.Selection, field string) string {
	var value string
	dd.Find("dl.field-list > dt").EachWithBreak(func(_ int, fieldDT *goquery.Selection) bool {
		if fieldLabel(fieldDT) != field {
			return true
		}
		value = strings.TrimSpace(fieldDT.NextFiltered("dd").Text())
		return false
	})
	return value
}

// fieldLabel normalizes a field-list term. Sphinx renders the colon inside
// the <dt>, so "Parameters:" and "Parameters" must compare equal.
func fieldLabel(fieldDT *goquery.Selection) string {
	return strings.TrimSuffix(strings.TrimSpace(fieldDT.Text()), ":")
}

// buildEntry finalizes an entry by composing the embedding text. Entries are
// dropped upstream if Path is empty; FullText is never empty for a valid
// entry because it always carries the path line.
func buildEntry(entry DocEntry) DocEntry {
	var parts []string

	parts = append(parts, "Function: "+entry.Path)
	if entry.ModulePath != "" {
		parts = append(parts, "Module: "+entry.ModulePath)
	}
	if entry.Kind != "" {
		parts = append(parts, "Type: "+entry.Kind)
	}
	if entry.Summary != "" {
		parts = append(parts, "Description: "+entry.Summary)
	}
	if entry.Signature != "" {
		parts = append(parts, "Signature: "+entry.Signature)
	}
	if len(entry.Params) > 0 {
		names := make([]string, len(entry.Params))
		for i, p := range entry.Params {
			names[i] = p.Name
		}
		parts = append(parts, "Parameters: "+strings.Join(names, ", "))
	}

	entry.FullText = strings.Join(parts, "\n\n")
	return entry
}
