package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		city   string
		region string
		postal string
		want   ID
	}{
		{name: "city by name", city: "St. Louis", region: "Missouri", postal: "63101", want: City},
		{name: "city name without punctuation", city: "st louis", region: "MO", postal: "", want: City},
		{name: "saint louis spelled out", city: "Saint Louis", region: "", postal: "", want: City},
		{name: "city by postal code only", city: "", region: "", postal: "63104", want: City},
		{name: "county suburb", city: "Clayton", region: "Missouri", postal: "63105", want: County},
		{name: "empty input falls back", city: "", region: "", postal: "", want: County},
		{name: "unknown city falls back", city: "Springfield", region: "Missouri", postal: "65801", want: County},
		{name: "straddling zip stays county", city: "", region: "Missouri", postal: "63105", want: County},
		{name: "out of state never city", city: "St. Louis", region: "Illinois", postal: "", want: County},
		{name: "whitespace only", city: "   ", region: " ", postal: " ", want: County},
		{name: "mixed case", city: "ST. LOUIS", region: "MISSOURI", postal: "", want: City},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.city, tt.region, tt.postal))
		})
	}
}

func TestResolve_Scenarios(t *testing.T) {
	assert.Equal(t, ID("stl-city"), Resolve("St. Louis", "Missouri", "63101"))
	assert.Equal(t, ID("stl-county"), Resolve("Clayton", "Missouri", "63105"))
	assert.Equal(t, ID("stl-county"), Resolve("", "", ""))
}

func TestFromCookie(t *testing.T) {
	assert.Equal(t, City, FromCookie("stl-city"))
	assert.Equal(t, County, FromCookie("stl-county"))
	assert.Equal(t, City, FromCookie(" STL-CITY "))
	assert.Equal(t, Default, FromCookie(""))
	assert.Equal(t, Default, FromCookie("garbage"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(City))
	assert.True(t, Valid(County))
	assert.False(t, Valid(ID("stl-metro")))
}

func TestAll(t *testing.T) {
	assert.Equal(t, []ID{City, County}, All())
}
