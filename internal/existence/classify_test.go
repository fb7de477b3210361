package existence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/resource-existence/internal/catalog"
)

func TestIsComplete(t *testing.T) {
	t.Parallel()
	base := func() *catalog.Resource {
		return &catalog.Resource{
			ListedResource: catalog.NewSeed(1),
			Description:    "desc",
			File:           &catalog.File{Type: ".jar"},
			Links:          map[string]string{catalog.LinkDiscussion: "threads/1/"},
		}
	}
	cases := []struct {
		name   string
		mutate func(r *catalog.Resource) *catalog.Resource
		want   bool
	}{
		{"complete", func(r *catalog.Resource) *catalog.Resource { return r }, true},
		{"nil record", func(*catalog.Resource) *catalog.Resource { return nil }, false},
		{"empty description", func(r *catalog.Resource) *catalog.Resource {
			r.Description = ""
			return r
		}, false},
		{"no file", func(r *catalog.Resource) *catalog.Resource {
			r.File = nil
			return r
		}, false},
		{"file without type", func(r *catalog.Resource) *catalog.Resource {
			r.File.Type = ""
			return r
		}, false},
		{"no links", func(r *catalog.Resource) *catalog.Resource {
			r.Links = nil
			return r
		}, false},
		{"no discussion link", func(r *catalog.Resource) *catalog.Resource {
			r.Links = map[string]string{"source": "https://example.org"}
			return r
		}, false},
		{"empty discussion link", func(r *catalog.Resource) *catalog.Resource {
			r.Links[catalog.LinkDiscussion] = ""
			return r
		}, true},
		{"zero downloads and placeholder author", func(r *catalog.Resource) *catalog.Resource {
			r.Downloads = 0
			r.Author = nil
			return r
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsComplete(tc.mutate(base())))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		outcome Outcome
		want    Transition
		suspect bool
	}{
		{OutcomeComplete, Transition{Action: ActionClear, Status: catalog.StatusExisting}, false},
		{OutcomeIncomplete, Transition{Action: ActionSet, Status: catalog.StatusIncomplete}, true},
		{OutcomeFailed, Transition{Action: ActionSet, Status: catalog.StatusUnknown}, true},
		{OutcomeTimeout, Transition{Action: ActionSet, Status: catalog.StatusTimeout}, true},
		{OutcomeSoftBlocked, Transition{Action: ActionNone}, false},
	}
	for _, tc := range cases {
		t.Run(tc.outcome.String(), func(t *testing.T) {
			got := Classify(tc.outcome)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.suspect, got.Suspect())
		})
	}
}
