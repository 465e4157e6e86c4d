package matching

import (
	"testing"

	"github.com/kalambet/agentmesh/internal/storage"
)

func TestRenderProfile(t *testing.T) {
	tests := []struct {
		name    string
		person  string
		profile storage.Profile
		want    string
	}{
		{
			name:    "all fields",
			person:  "Ada",
			profile: storage.Profile{Headline: "Compiler engineer", Bio: "Builds Go tools", Interests: "type systems", LookingFor: "co-founder"},
			want:    "Name: Ada\nHeadline: Compiler engineer\nBio: Builds Go tools\nInterests: type systems\nLooking For: co-founder",
		},
		{
			name:    "blank fields omitted",
			person:  "Bo",
			profile: storage.Profile{Bio: "  ", Interests: " chess "},
			want:    "Name: Bo\nInterests: chess",
		},
		{
			name:    "unknown name",
			person:  " ",
			profile: storage.Profile{Headline: "PM"},
			want:    "Name: Unknown\nHeadline: PM",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderProfile(tt.person, tt.profile); got != tt.want {
				t.Errorf("RenderProfile() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}
