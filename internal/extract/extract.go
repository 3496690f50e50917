package extract

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rashenal/navigator/pkg/models"
)

// Reply is the typed interpretation of a model's free-form output. A reply
// is either structured (the model returned valid JSON, flattened into
// Fields) or unstructured (raw text, with best-effort field extraction).
type Reply struct {
	Kind   models.ReplyKind
	Text   string
	Fields map[string]string
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// keyValueLine matches "Key: value" prose lines for the heuristic path.
var keyValueLine = regexp.MustCompile(`(?m)^\s*[-*]?\s*([A-Za-z][A-Za-z0-9 _]{0,40}?)\s*:\s+(.+?)\s*$`)

// Parse interprets raw model output. JSON object output (bare or inside a
// markdown fence) yields a structured reply; everything else is
// unstructured with key-value lines harvested heuristically.
func Parse(raw string) Reply {
	trimmed := strings.TrimSpace(raw)

	if candidate, ok := jsonCandidate(trimmed); ok {
		if fields := flatten(candidate); len(fields) > 0 {
			return Reply{
				Kind:   models.ReplyStructured,
				Text:   trimmed,
				Fields: fields,
			}
		}
	}

	return Reply{
		Kind:   models.ReplyUnstructured,
		Text:   trimmed,
		Fields: harvest(trimmed),
	}
}

func jsonCandidate(text string) (string, bool) {
	if gjson.Valid(text) && gjson.Parse(text).IsObject() {
		return text, true
	}
	if match := jsonFence.FindStringSubmatch(text); match != nil {
		if gjson.Valid(match[1]) && gjson.Parse(match[1]).IsObject() {
			return match[1], true
		}
	}
	return "", false
}

// flatten turns a JSON object into one level of string fields. Nested
// values keep their JSON encoding under the parent key.
func flatten(jsonText string) map[string]string {
	fields := make(map[string]string)
	gjson.Parse(jsonText).ForEach(func(key, value gjson.Result) bool {
		fields[key.String()] = value.String()
		return true
	})
	return fields
}

// harvest pulls "Key: value" lines out of prose. It is best-effort; an
// empty map simply means the reply stays raw text.
func harvest(text string) map[string]string {
	matches := keyValueLine.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	fields := make(map[string]string, len(matches))
	for _, match := range matches {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(match[1]), " ", "_"))
		fields[key] = strings.TrimSpace(match[2])
	}
	return fields
}
