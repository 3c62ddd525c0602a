package docs

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type swaggerDoc struct {
	Paths map[string]map[string]struct {
		Description string `json:"description"`
		Summary     string `json:"summary"`
	} `json:"paths"`
	Definitions map[string]json.RawMessage `json:"definitions"`
}

var annotationBlock = regexp.MustCompile(`((?:// @.*\n)+)func \(h \*Handler\)`)

// Every handler annotation must be reflected in the generated document.
func TestSwaggerDocMatchesHandlerAnnotations(t *testing.T) {
	var doc swaggerDoc
	require.NoError(t, json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &doc))

	src, err := os.ReadFile("../../../internal/management/handler.go")
	require.NoError(t, err)

	blocks := annotationBlock.FindAllStringSubmatch(string(src), -1)
	require.NotEmpty(t, blocks)

	for _, b := range blocks {
		var summary, description, route string
		for _, line := range strings.Split(strings.TrimSpace(b[1]), "\n") {
			switch {
			case strings.HasPrefix(line, "// @Summary"):
				summary = strings.TrimSpace(strings.TrimPrefix(line, "// @Summary"))
			case strings.HasPrefix(line, "// @Description"):
				description = strings.TrimSpace(strings.TrimPrefix(line, "// @Description"))
			case strings.HasPrefix(line, "// @Router"):
				route = strings.TrimSpace(strings.TrimPrefix(line, "// @Router"))
			}
		}
		fields := strings.Fields(route)
		require.Len(t, fields, 2, route)
		method := strings.Trim(fields[1], "[]")

		op, ok := doc.Paths[fields[0]][method]
		require.True(t, ok, "missing %s %s", method, fields[0])
		assert.Equal(t, summary, op.Summary, route)
		assert.Equal(t, description, op.Description, route)
	}
}

func TestSwaggerDocHasNoFilterDefinition(t *testing.T) {
	var doc swaggerDoc
	require.NoError(t, json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &doc))

	assert.NotContains(t, doc.Definitions, "models.Filter")
	assert.Contains(t, doc.Definitions, "models.FilterSet")
}
