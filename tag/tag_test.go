package tag

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Tag
	}{
		{
			name: "single tag",
			text: "Alice has @power:hardening in her arsenal.",
			want: []Tag{{Category: "power", Value: "hardening", Offset: 10, Mentions: 1}},
		},
		{
			name: "multiple tags preserve order",
			text: "@skill:debugging then @power:hardening",
			want: []Tag{
				{Category: "skill", Value: "debugging", Offset: 0, Mentions: 1},
				{Category: "power", Value: "hardening", Offset: 22, Mentions: 1},
			},
		},
		{
			name: "duplicates counted once",
			text: "@power:hardening again @power:hardening and @power:hardening",
			want: []Tag{{Category: "power", Value: "hardening", Offset: 0, Mentions: 3}},
		},
		{
			name: "missing colon skipped",
			text: "mention @power without value",
			want: nil,
		},
		{
			name: "empty value skipped",
			text: "broken @power: tag",
			want: nil,
		},
		{
			name: "whitespace breaks the token",
			text: "@magic:fire ball",
			want: []Tag{{Category: "magic", Value: "fire", Offset: 0, Mentions: 1}},
		},
		{
			name: "underscores allowed",
			text: "@tech:neural_interface",
			want: []Tag{{Category: "tech", Value: "neural_interface", Offset: 0, Mentions: 1}},
		},
		{
			name: "same category different values",
			text: "@power:hardening @power:flight",
			want: []Tag{
				{Category: "power", Value: "hardening", Offset: 0, Mentions: 1},
				{Category: "power", Value: "flight", Offset: 17, Mentions: 1},
			},
		},
		{
			name: "no tags",
			text: "plain narrative text",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}
