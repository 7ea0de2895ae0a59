package parser

import (
	"testing"

	"nurture_backend/internal/leads/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCaptureEmail(t *testing.T) {
	p := New("")
	body := "Hi Jane Doe,\n\nThanks for your interest.\nYour promotion code is SAVE20 and it is valid for 30 days.\nhttps://www.pm-example.com/enroll_na\n"

	c := p.Parse(Input{
		Subject:   "CAPM promotion code claim",
		Body:      body,
		Recipient: "Jane Doe <Jane.Doe@Acme.com>",
	})

	require.NotNil(t, c)
	assert.Equal(t, domain.ProgramCAPM, c.Program)
	assert.Equal(t, "jane.doe@acme.com", c.Email)
	assert.Equal(t, "Jane", c.FirstName)
	assert.Equal(t, "Doe", c.LastName)
	assert.Equal(t, "SAVE20", c.PromoCode)
	assert.Equal(t, "https://www.pm-example.com/enroll_na", c.EnrollmentURL)
	assert.Equal(t, domain.RegionNorthAmerica, c.Region)
}

func TestParseMissReturnsNil(t *testing.T) {
	p := New("")
	cases := []struct {
		name string
		in   Input
	}{
		{"unrelated subject", Input{Subject: "Weekly newsletter", Body: "Hi Jane,", Recipient: "jane@acme.com"}},
		{"unknown program", Input{Subject: "PRINCE2 promotion code claim", Body: "Hi Jane,", Recipient: "jane@acme.com"}},
		{"program not at start", Input{Subject: "About the PMP promotion code claim", Recipient: "jane@acme.com"}},
		{"no recipient address", Input{Subject: "PMP promotion code claim", Body: "Hi Jane,", Recipient: "undisclosed-recipients:;"}},
		{"empty input", Input{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Nil(t, p.Parse(tc.in))
		})
	}
}

func TestParseMissingOptionalFieldsYieldsEmptyValues(t *testing.T) {
	c := New("").Parse(Input{
		Subject:   "pmi-acp Promotion Code Claim",
		Body:      "Thanks for reaching out.",
		Recipient: "bob@example.org",
	})

	require.NotNil(t, c)
	assert.Equal(t, domain.ProgramPMIACP, c.Program)
	assert.Empty(t, c.FirstName)
	assert.Empty(t, c.LastName)
	assert.Empty(t, c.PromoCode)
	assert.Empty(t, c.EnrollmentURL)
	assert.Equal(t, domain.RegionUnknown, c.Region)
}

func TestNameRule(t *testing.T) {
	cases := []struct {
		body      string
		firstName string
		lastName  string
	}{
		{"Hi Jane,\nbody", "Jane", ""},
		{"Hi  Mary Ann Smith,\n", "Mary", "Ann Smith"},
		{"Dear all,\nHi Bob Stone, welcome", "Bob", "Stone"},
		{"Hello Jane,", "", ""},
	}
	for _, tc := range cases {
		c := New("").Parse(Input{Subject: "PMP promotion code claim", Body: tc.body, Recipient: "x@y.com"})
		require.NotNil(t, c, tc.body)
		assert.Equal(t, tc.firstName, c.FirstName, tc.body)
		assert.Equal(t, tc.lastName, c.LastName, tc.body)
	}
}

func TestPromoCodeRule(t *testing.T) {
	cases := map[string]string{
		"Your promotion code is SAVE20.":       "SAVE20",
		"promotion code PMI2024 applies":       "PMI2024",
		"PROMOTION CODE IS abc_1 for you":      "abc_1",
		"use the code SAVE20":                  "",
		"first promotion code A1, then code B": "A1",
	}
	for body, want := range cases {
		c := New("").Parse(Input{Subject: "PMP promotion code claim", Body: body, Recipient: "x@y.com"})
		require.NotNil(t, c)
		assert.Equal(t, want, c.PromoCode, body)
	}
}

func TestEnrollmentURLRuleHonoursDomain(t *testing.T) {
	body := `Visit https://other.com/enroll or <a href="https://learn.acme.io/pmp_europe?x=1">here</a>, then https://learn.acme.io/second.`
	c := New("learn.acme.io").Parse(Input{Subject: "PMP promotion code claim", Body: body, Recipient: "x@y.com"})

	require.NotNil(t, c)
	assert.Equal(t, "https://learn.acme.io/pmp_europe?x=1", c.EnrollmentURL)
	assert.Equal(t, domain.RegionEurope, c.Region)
}

func TestRegionPriority(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"north america keyword", "Offer for North America residents", domain.RegionNorthAmerica},
		{"na url wins over europe keyword", "Europe pricing https://www.pm-example.com/enroll_na", domain.RegionNorthAmerica},
		{"europe keyword", "Valid across Europe", domain.RegionEurope},
		{"europe url", "https://www.pm-example.com/enroll_europe", domain.RegionEurope},
		{"eu suffix is not a region", "https://www.pm-example.com/enroll_eu", domain.RegionUnknown},
		{"australia url", "https://www.pm-example.com/enroll_au", domain.RegionAustralia},
		{"australia keyword", "Australia and NZ", domain.RegionAustralia},
		{"nothing", "plain body", domain.RegionUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New("").Parse(Input{Subject: "CAPM promotion code claim", Body: tc.body, Recipient: "x@y.com"})
			require.NotNil(t, c)
			assert.Equal(t, tc.want, c.Region)
		})
	}
}

func TestAddress(t *testing.T) {
	assert.Equal(t, "jane@acme.com", Address("Jane <JANE@acme.com>"))
	assert.Equal(t, "a@b.co", Address("a@b.co, c@d.co"))
	assert.Equal(t, "", Address("nobody"))
}

func TestRulesAreOrdered(t *testing.T) {
	rules := New("").Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, []string{"name", "promoCode", "enrollmentUrl"}, []string{rules[0].Field, rules[1].Field, rules[2].Field})
}
