package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/oroio/internal/models"
)

func TestParseUsage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want models.Snapshot
	}{
		{
			name: "standard section with overage and ms expiry",
			body: `{"usage":{"standard":{"totalAllowance":20000000,"orgTotalTokensUsed":5000000,"orgOverageUsed":250000},"endDate":1735603200000}}`,
			want: models.Snapshot{Balance: 14750000, BalanceNum: 14750000, Total: 20000000, Used: 5250000, Expires: "2024-12-31"},
		},
		{
			name: "premium fallback with string expiry",
			body: `{"usage":{"premium":{"basicAllowance":100,"used":30},"expire_at":"2025-06-01T00:00:00Z"}}`,
			want: models.Snapshot{Balance: 70, BalanceNum: 70, Total: 100, Used: 30, Expires: "2025-06-01T00:00:00Z"},
		},
		{
			name: "empty standard section skipped",
			body: `{"usage":{"standard":{},"main":{"allowance":10,"tokensUsed":12}}}`,
			want: models.Snapshot{Balance: -2, BalanceNum: -2, Total: 10, Used: 12, Expires: "?"},
		},
		{
			name: "digit string expiry",
			body: `{"usage":{"total":{"allowance":"50"},"expires_at":"1704067200000"}}`,
			want: models.Snapshot{Balance: 50, BalanceNum: 50, Total: 50, Expires: "2024-01-01"},
		},
		{
			name: "zero allowance falls through to last field",
			body: `{"usage":{"standard":{"totalAllowance":0,"used":5}}}`,
			want: models.Snapshot{Expires: "?"},
		},
		{
			name: "section without allowance",
			body: `{"usage":{"standard":{"used":5},"endDate":0,"expire_at":"soon"}}`,
			want: models.Snapshot{Expires: "soon"},
		},
		{
			name: "missing usage",
			body: `{"error":"nope"}`,
			want: models.Snapshot{Expires: "?", Raw: models.RawNoUsage},
		},
		{
			name: "empty usage",
			body: `{"usage":{}}`,
			want: models.Snapshot{Expires: "?", Raw: models.RawNoUsage},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseUsage([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseUsage_Errors(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`[1,2,3]`,
		`{"usage":{"standard":{"totalAllowance":"lots"}}}`,
		`{"usage":{"standard":{"totalAllowance":{"nested":true}}}}`,
	} {
		_, err := ParseUsage([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}
