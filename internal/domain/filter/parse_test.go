package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablequery/internal/core/apperror"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		delimiter string
		want      Descriptor
	}{
		{
			name: "two segments default to equality",
			spec: "status;active",
			want: Descriptor{Column: "status", Operator: Equal, Value: "active"},
		},
		{
			name: "alias operator",
			spec: "age;gte;21",
			want: Descriptor{Column: "age", Operator: GreaterOrEqual, Value: "21"},
		},
		{
			name: "canonical symbol",
			spec: "age;<;65",
			want: Descriptor{Column: "age", Operator: Less, Value: "65"},
		},
		{
			name: "membership",
			spec: "id;nin;1,2",
			want: Descriptor{Column: "id", Operator: NotInList, Value: "1,2"},
		},
		{
			name: "between",
			spec: "age;between;18;30",
			want: Descriptor{Column: "age", Operator: Between, Value: Range{Start: "18", End: "30"}},
		},
		{
			name: "qualified column",
			spec: "workers.age;gt;18",
			want: Descriptor{Column: "workers.age", Operator: Greater, Value: "18"},
		},
		{
			name: "input is lower-cased",
			spec: "Name;LIKE;%John%",
			want: Descriptor{Column: "name", Operator: Like, Value: "%john%"},
		},
		{
			name:      "custom delimiter",
			spec:      "name^>^21",
			delimiter: "^",
			want:      Descriptor{Column: "name", Operator: Greater, Value: "21"},
		},
		{
			name:      "empty delimiter falls back to default",
			spec:      "age;eq;3",
			delimiter: "",
			want:      Descriptor{Column: "age", Operator: Equal, Value: "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec, tt.delimiter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"single segment", "age"},
		{"five segments", "age;between;1;2;3"},
		{"four segments without between", "age;gt;1;2"},
		{"between without end", "age;between;18"},
		{"numeric operator", "col;5;val"},
		{"numeric float operator", "col;2.5;val"},
		{"unknown operator", "age;neq;3"},
		{"column with spaces", "age or 1;gt;3"},
		{"column starting with digit", "1age;3"},
		{"empty column", ";3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.spec, DefaultDelimiter)
			require.Error(t, err)
			assert.True(t, apperror.IsInvalidFilterFormat(err), "got %v", err)

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.spec, appErr.Details["filter"])
		})
	}
}

func TestParse_CaseInsensitive(t *testing.T) {
	upper, err := Parse("Age;GTE;21", DefaultDelimiter)
	require.NoError(t, err)

	lower, err := Parse("age;gte;21", DefaultDelimiter)
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
}

func TestParse_CustomDelimiterMatchesDefault(t *testing.T) {
	custom, err := Parse("name^>^21", "^")
	require.NoError(t, err)

	standard, err := Parse("name;>;21", DefaultDelimiter)
	require.NoError(t, err)

	assert.Equal(t, standard, custom)
}

func TestSpec_Column(t *testing.T) {
	assert.Equal(t, "age", Spec("age;gte;21").Column(""))
	assert.Equal(t, "name", Spec(" name ^ bob").Column("^"))
}
