package httpapi

import (
	"testing"

	"statforge/internal/corpus"
	"statforge/internal/db"
)

func TestDeriveState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		stats *db.CorpusStats
		want  corpus.State
	}{
		{name: "nil stats", stats: nil, want: corpus.StateEmpty},
		{name: "never built", stats: &db.CorpusStats{}, want: corpus.StateEmpty},
		{
			name:  "built and current",
			stats: &db.CorpusStats{Watermark: &db.Watermark{LastRecordID: 42}},
			want:  corpus.StateBuilt,
		},
		{
			name:  "new records pending",
			stats: &db.CorpusStats{Watermark: &db.Watermark{LastRecordID: 42}, Pending: 7},
			want:  corpus.StateStale,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := deriveState(tc.stats); got != tc.want {
				t.Fatalf("expected state %s, got %s", tc.want, got)
			}
		})
	}
}
