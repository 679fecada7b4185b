package internal_test

import (
	"testing"

	"github.com/sagarc03/strongbox/database/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var expected = internal.Schema{
	"id":   {Type: "uuid"},
	"name": {Type: "text"},
	"size": {Type: "bigint"},
}

func TestCompareSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		actual         internal.Schema
		wantAbsent     bool
		wantMissing    []string
		wantMismatched []string
	}{
		{
			name: "exact match",
			actual: internal.Schema{
				"id":   {Type: "uuid"},
				"name": {Type: "text"},
				"size": {Type: "bigint"},
			},
		},
		{
			name: "type case and extra columns ignored",
			actual: internal.Schema{
				"id":    {Type: "UUID"},
				"name":  {Type: "TEXT"},
				"size":  {Type: "BIGINT"},
				"extra": {Type: "text", Nullable: true},
			},
		},
		{
			name:       "absent table",
			actual:     internal.Schema{},
			wantAbsent: true,
		},
		{
			name: "missing columns sorted",
			actual: internal.Schema{
				"id": {Type: "uuid"},
			},
			wantMissing: []string{"name", "size"},
		},
		{
			name: "type and nullability drift",
			actual: internal.Schema{
				"id":   {Type: "text"},
				"name": {Type: "text", Nullable: true},
				"size": {Type: "bigint"},
			},
			wantMismatched: []string{
				"id: expected uuid, got text",
				"name: expected nullable=false, got nullable=true",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := internal.CompareSchema("things", expected, tt.actual)
			if !tt.wantAbsent && tt.wantMissing == nil && tt.wantMismatched == nil {
				assert.NoError(t, err)
				return
			}

			var drift *internal.SchemaError
			require.ErrorAs(t, err, &drift)
			assert.Equal(t, "things", drift.Table)
			assert.Equal(t, tt.wantAbsent, drift.Absent)
			assert.Equal(t, tt.wantMissing, drift.Missing)
			assert.Equal(t, tt.wantMismatched, drift.Mismatched)
		})
	}
}

func TestSchemaError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "table things does not exist", (&internal.SchemaError{Table: "things", Absent: true}).Error())

	msg := (&internal.SchemaError{
		Table:      "things",
		Missing:    []string{"size"},
		Mismatched: []string{"id: expected uuid, got text"},
	}).Error()
	assert.Contains(t, msg, "missing columns: size")
	assert.Contains(t, msg, "mismatched columns: id: expected uuid, got text")
}
