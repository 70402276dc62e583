package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "standart oda", Fold("  STANDART   Oda "))
	assert.Equal(t, "standart oda", Fold("Standárt oda"))
	assert.Equal(t, "iki yatakli", Fold("İki Yataklı"))
	assert.Equal(t, "deluxe suite sea view", Fold("Deluxe Suite - Sea View"))
	assert.Equal(t, "*", Fold("*"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"Standard Room", CategoryStandard, true},
		{"Klasik Oda", CategoryStandard, true},
		{"Deluxe Double Room", CategoryDeluxe, true},
		{"King Suite", CategorySuite, true},
		{"Aile Odası", CategoryFamily, true},
		{"Twin Room", CategoryTwin, true},
		{"Penthouse", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, conf, ok := DefaultSynonyms.Classify(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.Equal(t, ConfidenceLexical, conf)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	got, ok := DefaultSynonyms.Resolve("standart")
	assert.True(t, ok)
	assert.Equal(t, CategoryStandard, got)

	got, ok = DefaultSynonyms.Resolve("suite")
	assert.True(t, ok)
	assert.Equal(t, CategorySuite, got)

	_, ok = DefaultSynonyms.Resolve("presidential")
	assert.False(t, ok)
}

func TestIsGeneric(t *testing.T) {
	for _, s := range []string{"", "any", "all", "*", "standard", "default", "room"} {
		assert.True(t, IsGeneric(s), s)
	}
	assert.False(t, IsGeneric("deluxe"))
}

func TestMerge(t *testing.T) {
	merged := DefaultSynonyms.Merge(map[string][]string{
		"Deluxe":    {"Kral Dairesi", "deluxe", ""},
		"Penthouse": {"Çatı Katı"},
		"":          {"ignored"},
	})

	category, ok := merged.Resolve(Fold("Kral Dairesi"))
	require.True(t, ok)
	assert.Equal(t, CategoryDeluxe, category)

	category, _, ok = merged.Classify("Çatı Katı Suite View")
	require.True(t, ok)
	assert.Equal(t, CategorySuite, category)

	category, _, ok = merged.Classify("Cati Kati")
	require.True(t, ok)
	assert.Equal(t, "penthouse", category)

	assert.NotContains(t, DefaultSynonyms[CategoryDeluxe], "kral dairesi")
	_, ok = merged[""]
	assert.False(t, ok)
}
