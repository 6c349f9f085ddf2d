package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Evaluate(t *testing.T) {
	t.Parallel()

	vals := map[string]Value{
		"ga_pageviews": Defined(100),
		"ga_entrances": Defined(25),
		"ga_exits":     Defined(40),
		"zero":         Defined(0),
	}

	tests := []struct {
		name string
		src  string
		want Value
	}{
		{
			name: "addition",
			src:  "{ga_entrances} + {ga_exits}",
			want: Defined(65),
		},
		{
			name: "ratio",
			src:  "{ga_entrances} / {ga_pageviews}",
			want: Defined(0.25),
		},
		{
			name: "multiplication binds tighter than addition",
			src:  "{ga_entrances} + {ga_exits} * 2",
			want: Defined(105),
		},
		{
			name: "parentheses override precedence",
			src:  "({ga_entrances} + {ga_exits}) * 2",
			want: Defined(130),
		},
		{
			name: "subtraction is left associative",
			src:  "{ga_pageviews} - {ga_exits} - 10",
			want: Defined(50),
		},
		{
			name: "literal division",
			src:  "10 / 4",
			want: Defined(2.5),
		},
		{
			name: "float literals",
			src:  "0.5 * {ga_pageviews}",
			want: Defined(50),
		},
		{
			name: "division by zero is undefined",
			src:  "{ga_pageviews} / {zero}",
			want: Undefined(),
		},
		{
			name: "division by zero expression is undefined",
			src:  "{ga_pageviews} / ({ga_exits} - {ga_exits})",
			want: Undefined(),
		},
		{
			name: "undefined operand propagates",
			src:  "{not_seeded} + 1",
			want: Undefined(),
		},
		{
			name: "whitespace is insignificant",
			src:  "  {ga_entrances}/{ga_pageviews}  ",
			want: Defined(0.25),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			expr, err := Parse(tt.src)
			require.NoError(t, err)

			got := expr.Eval(vals)
			assert.Equal(t, tt.want.Defined, got.Defined)

			if tt.want.Defined {
				assert.InDelta(t, tt.want.V, got.V, 1e-9)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "empty", src: "", wantErr: errEmptyFormula},
		{name: "whitespace only", src: "   ", wantErr: errEmptyFormula},
		{name: "unterminated reference", src: "{ga_pageviews", wantErr: errUnterminatedRef},
		{name: "empty reference", src: "{} + 1", wantErr: errEmptyRef},
		{name: "bare identifier", src: "ga_pageviews + 1", wantErr: errUnexpectedToken},
		{name: "dangling operator", src: "{ga_pageviews} +", wantErr: errUnexpectedEnd},
		{name: "doubled operator", src: "1 + / 2", wantErr: errUnexpectedToken},
		{name: "missing closing paren", src: "(1 + 2", wantErr: errMissingParen},
		{name: "trailing input", src: "1 2", wantErr: errTrailingInput},
		{name: "stray closing paren", src: "1 + 2)", wantErr: errTrailingInput},
		{name: "bad number", src: "1..2 + 1", wantErr: errBadNumber},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRefs(t *testing.T) {
	t.Parallel()

	expr, err := Parse("{ga_pageviews} * ({ga_entrances} + {ga_pageviews}) / 2")
	require.NoError(t, err)

	assert.Equal(t, []string{"ga_entrances", "ga_pageviews"}, Refs(expr))
}

func TestValue_Constructors(t *testing.T) {
	t.Parallel()

	assert.True(t, Defined(1.5).Defined)
	assert.Equal(t, 1.5, Defined(1.5).V)
	assert.False(t, Undefined().Defined)
}
