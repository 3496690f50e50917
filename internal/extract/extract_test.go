package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rashenal/navigator/pkg/models"
)

func TestParseBareJSONObject(t *testing.T) {
	reply := Parse(`{"name": "Ada Lovelace", "score": 9, "skills": ["math", "golang"]}`)
	require.Equal(t, models.ReplyStructured, reply.Kind)
	assert.Equal(t, "Ada Lovelace", reply.Fields["name"])
	assert.Equal(t, "9", reply.Fields["score"])
	assert.JSONEq(t, `["math", "golang"]`, reply.Fields["skills"])
}

func TestParseFencedJSON(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"salary_min\": 70000, \"salary_max\": 90000}\n```\nLet me know if you need more."
	reply := Parse(raw)
	require.Equal(t, models.ReplyStructured, reply.Kind)
	assert.Equal(t, "70000", reply.Fields["salary_min"])
	assert.Equal(t, "90000", reply.Fields["salary_max"])
}

func TestParseProseWithKeyValues(t *testing.T) {
	raw := "The posting looks strong.\nTitle: Senior Go Engineer\nLocation: Remote (UK)\n- Salary: £85,000\nOverall a good match."
	reply := Parse(raw)
	require.Equal(t, models.ReplyUnstructured, reply.Kind)
	assert.Equal(t, "Senior Go Engineer", reply.Fields["title"])
	assert.Equal(t, "Remote (UK)", reply.Fields["location"])
	assert.Equal(t, "£85,000", reply.Fields["salary"])
	assert.Equal(t, raw, reply.Text)
}

func TestParsePlainProse(t *testing.T) {
	reply := Parse("  This candidate seems like a reasonable fit overall.  ")
	require.Equal(t, models.ReplyUnstructured, reply.Kind)
	assert.Empty(t, reply.Fields)
	assert.Equal(t, "This candidate seems like a reasonable fit overall.", reply.Text)
}

func TestParseInvalidJSONFallsBack(t *testing.T) {
	reply := Parse(`{"broken": `)
	assert.Equal(t, models.ReplyUnstructured, reply.Kind)
}

func TestParseJSONArrayIsUnstructured(t *testing.T) {
	// Only objects flatten into fields; a bare array stays raw.
	reply := Parse(`["a", "b"]`)
	assert.Equal(t, models.ReplyUnstructured, reply.Kind)
}
