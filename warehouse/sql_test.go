package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  string
		found bool
	}{
		{"fenced block", "Here you go:\n```sql\nSELECT * FROM orders;\n```\nDone.", "SELECT * FROM orders;", true},
		{"multi line", "```sql\n  SELECT id,\n    name\n  FROM customers\n```", "SELECT id,\n    name\n  FROM customers", true},
		{"first block wins", "```sql\nSELECT 1\n```\n```sql\nSELECT 2\n```", "SELECT 1", true},
		{"no block", "SELECT 1", "", false},
		{"other language", "```python\nprint(1)\n```", "", false},
		{"empty block", "```sql\n```", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSQL(tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsReadOnly(t *testing.T) {
	for _, q := range []string{
		"SELECT 1",
		"  select * from t",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"-- totals\nSELECT SUM(total_amount) FROM orders",
		"/* c */ (SELECT 1)",
		"explain select 1",
	} {
		assert.True(t, IsReadOnly(q), q)
	}

	for _, q := range []string{
		"DELETE FROM orders",
		"drop table customers",
		"INSERT INTO t VALUES (1)",
		"",
		"-- only a comment",
		"/* unterminated",
	} {
		assert.False(t, IsReadOnly(q), q)
	}
}
