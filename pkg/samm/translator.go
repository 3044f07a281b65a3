// Package samm turns the JSON schema generated for a SAMM aspect model into
// a JSON-LD @context, so aspect payloads can be read as linked data.
package samm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/rs/zerolog"
)

const (
	// DefaultAspectPrefix is the term bound to the aspect's namespace.
	DefaultAspectPrefix = "aspect"

	// DefaultRecursionDepth bounds how often a $ref may reappear on its own
	// expansion path.
	DefaultRecursionDepth = 2

	schemaPrefix  = "schema"
	schemaIRI     = "https://schema.org/"
	jsonLDVersion = 1.1

	refKey        = "$ref"
	refRoot       = "#/"
	refPathSep    = "/"
	expansionSep  = "/-/"
	definitionKey = "@definition"
)

// ErrInvalidSemanticID is returned for a semantic id without "#<Aspect>".
var ErrInvalidSemanticID = errors.New("invalid semantic id, missing the model reference")

// ErrEmptyContext is returned when the schema yields no context at all.
var ErrEmptyContext = errors.New("schema produced no json-ld context")

// Translator converts aspect schemas. It holds no per-schema state and may
// be shared.
type Translator struct {
	// RecursionDepth defaults to DefaultRecursionDepth.
	RecursionDepth int
	logger         zerolog.Logger
}

// NewTranslator creates a translator. verbose enables warnings about cut
// recursive references.
func NewTranslator(verbose bool) *Translator {
	return &Translator{
		RecursionDepth: DefaultRecursionDepth,
		logger:         logging.Verbose(logging.NewLogger(logging.ComponentSAMM), verbose),
	}
}

// SchemaToJSONLD returns {"@context": ...} for schema. semanticID is the
// aspect URN, e.g. "urn:samm:io.catenax.part_type_information:1.0.0#PartTypeInformation".
// aspectPrefix names the aspect namespace term; empty means "aspect".
func (t *Translator) SchemaToJSONLD(semanticID string, schema map[string]any, aspectPrefix string) (map[string]any, error) {
	namespace, aspectName, ok := strings.Cut(semanticID, "#")
	if !ok || aspectName == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSemanticID, semanticID)
	}
	if aspectPrefix == "" {
		aspectPrefix = DefaultAspectPrefix
	}
	depth := t.RecursionDepth
	if depth <= 0 {
		depth = DefaultRecursionDepth
	}

	w := &walker{
		schema:   schema,
		prefix:   aspectPrefix,
		maxDepth: depth,
		logger:   t.logger,
	}

	node := w.node(schema, "", "")
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmptyContext, semanticID)
	}
	node["@id"] = aspectPrefix + ":" + aspectName
	if desc, ok := schema["description"]; ok {
		define(node, desc)
	}

	ctx := map[string]any{
		"@version":   jsonLDVersion,
		schemaPrefix: schemaIRI,
	}
	ctx[aspectPrefix] = namespace + "#"
	ctx[aspectName] = node
	return map[string]any{"@context": ctx}, nil
}

// walker carries the state of one translation.
type walker struct {
	schema   map[string]any
	prefix   string
	maxDepth int
	depth    int
	logger   zerolog.Logger
}

func (w *walker) node(property map[string]any, path, key string) map[string]any {
	typ, ok := property["type"].(string)
	if !ok {
		return nil
	}

	node := map[string]any{}
	if key != "" {
		node["@id"] = w.prefix + ":" + key
	}
	if desc, ok := property["description"]; ok {
		define(node, desc)
	}

	switch typ {
	case "object":
		props, ok := property["properties"].(map[string]any)
		if !ok {
			return nil
		}
		node["@context"] = w.propertiesContext(props, path)
		return node
	case "array":
		return w.arrayNode(property, node, path)
	default:
		node["@type"] = schemaPrefix + ":" + typ
		return node
	}
}

func (w *walker) arrayNode(property, node map[string]any, path string) map[string]any {
	items, ok := property["items"]
	if !ok {
		return nil
	}
	node["@container"] = "@list"

	item, ok := items.(map[string]any)
	if !ok {
		// tuple items are left untyped
		return node
	}
	ref, hasRef := item[refKey]
	if !hasRef {
		typ, ok := item["type"].(string)
		if !ok {
			return nil
		}
		node["@type"] = schemaPrefix + ":" + typ
		return node
	}

	expanded := w.expand(ref, path, "")
	if expanded == nil {
		node["@context"] = nil
		return node
	}
	ctx := contextTemplate()
	for k, v := range expanded {
		ctx[k] = v
	}
	if desc, ok := item["description"]; ok {
		define(ctx, desc)
	}
	node["@context"] = ctx
	return node
}

func (w *walker) propertiesContext(props map[string]any, path string) map[string]any {
	if len(props) == 0 {
		return nil
	}
	ctx := contextTemplate()
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key := termName(name)
		ref, ok := prop[refKey]
		if key == "" || !ok {
			continue
		}
		node := w.expand(ref, path, key)
		if node == nil {
			continue
		}
		if desc, ok := prop["description"]; ok {
			define(node, desc)
		}
		ctx[key] = node
	}
	return ctx
}

// expand resolves ref against the root schema and builds its node. A ref
// already on path is followed at most maxDepth times.
func (w *walker) expand(rawRef any, path, key string) map[string]any {
	ref, ok := rawRef.(string)
	if !ok || ref == "" {
		return nil
	}

	if strings.Contains(path, ref) {
		if w.depth >= w.maxDepth {
			w.logger.Warn().
				Str("ref", ref).
				Str("ref_path", path).
				Msg("Recursive reference cut")
			w.depth = 0
			return nil
		}
		w.depth++
	}

	target, ok := lookup(w.schema, strings.TrimPrefix(ref, refRoot)).(map[string]any)
	if !ok {
		return nil
	}
	return w.node(target, path+expansionSep+ref, key)
}

func lookup(root map[string]any, path string) any {
	var current any = root
	for _, part := range strings.Split(path, refPathSep) {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = obj[part]; !ok {
			return nil
		}
	}
	return current
}

func contextTemplate() map[string]any {
	return map[string]any{
		"@version": jsonLDVersion,
		"id":       "@id",
		"type":     "@type",
	}
}

// define sets the @definition of node's nested @context, creating it when
// missing.
func define(node map[string]any, description any) {
	ctx, ok := node["@context"].(map[string]any)
	if !ok || ctx == nil {
		ctx = map[string]any{}
		node["@context"] = ctx
	}
	ctx[definitionKey] = description
}

func termName(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "@", ""), " ", "-")
}
