package tmpl

import (
	"testing"

	"postback-relay/internal/fields"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	lookup := fields.Chain{
		fields.Map{"clickId": "abc", "revenue": "12.50", "empty": "", "bad": "x1"},
		fields.Map{"pixelId": "999", "clickId": "from-config"},
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain variable", "id={{clickId}}", "id=abc"},
		{"config fallback", "https://graph.facebook.com/v18.0/{{pixelId}}/events", "https://graph.facebook.com/v18.0/999/events"},
		{"missing renders empty", "[{{nope}}]", "[]"},
		{"default on missing", "{{currency|default:USD}}", "USD"},
		{"default on empty", "{{empty|default:n/a}}", "n/a"},
		{"default not applied", "{{clickId|default:zzz}}", "abc"},
		{"number", "{{revenue|number}}", "12.5"},
		{"number failure", "{{bad|number}}", "0"},
		{"number missing", "{{nope|number}}", "0"},
		{"unknown modifier", "{{clickId|upper}}", "abc"},
		{"malformed token kept", "{{ clickId }}", "{{ clickId }}"},
		{"unterminated", "{{clickId", "{{clickId"},
		{"extra brace", "{{{clickId}}}", "{abc}"},
		{"no tokens", "static", "static"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.template).Render(lookup))
		})
	}
}

func TestVariables(t *testing.T) {
	tpl := Parse("{{a}}-{{b|default:x}}-{{c|number}}")
	vars := tpl.Variables()
	assert.Len(t, vars, 3)
	assert.Equal(t, Variable{Name: "b", Modifier: "default", Arg: "x", HasArg: true}, vars[1])
}

func TestCompileNested(t *testing.T) {
	body := map[string]interface{}{
		"data": []interface{}{
			map[string]interface{}{
				"event_id": "{{transactionId}}",
				"custom_data": map[string]interface{}{
					"currency": "{{currency|default:USD}}",
					"value":    "{{revenue}}",
				},
			},
		},
		"partialFailure": true,
	}

	v := Compile(body)
	got := v.Render(fields.Map{"transactionId": "t-1", "revenue": 5.0})

	want := map[string]interface{}{
		"data": []interface{}{
			map[string]interface{}{
				"event_id": "t-1",
				"custom_data": map[string]interface{}{
					"currency": "USD",
					"value":    "5",
				},
			},
		},
		"partialFailure": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rendered body mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"currency", "revenue", "transactionId"}, VariableNames(v))
}
