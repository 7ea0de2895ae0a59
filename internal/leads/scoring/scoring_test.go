package scoring

import (
	"testing"

	"nurture_backend/internal/leads/domain"

	"github.com/stretchr/testify/assert"
)

func TestScoreExamples(t *testing.T) {
	cases := []struct {
		name    string
		program domain.Program
		email   string
		region  string
		want    int
	}{
		{"pmp business north america", domain.ProgramPMP, "a@acme.com", domain.RegionNorthAmerica, 95},
		{"pmi-cp consumer europe", domain.ProgramPMICP, "a@gmail.com", domain.RegionEurope, 65},
		{"capm consumer unknown", domain.ProgramCAPM, "a@Yahoo.com", domain.RegionUnknown, 60},
		{"pmi-acp gets no program bonus", domain.ProgramPMIACP, "a@outlook.com", domain.RegionUnknown, 50},
		{"pmi-acp business north america", domain.ProgramPMIACP, "a@corp.io", domain.RegionNorthAmerica, 75},
		{"missing domain", domain.ProgramCAPM, "broken", domain.RegionAustralia, 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.program, tc.email, tc.region))
		})
	}
}

func TestScoreIsBounded(t *testing.T) {
	regions := []string{domain.RegionNorthAmerica, domain.RegionEurope, domain.RegionAustralia, domain.RegionUnknown, ""}
	emails := []string{"a@acme.com", "a@gmail.com", "", "@", "x@"}
	programs := append([]domain.Program{"", "OTHER"}, domain.Programs...)

	for _, p := range programs {
		for _, e := range emails {
			for _, r := range regions {
				s := Score(p, e, r)
				assert.GreaterOrEqual(t, s, 0)
				assert.LessOrEqual(t, s, 100)
			}
		}
	}
}

func TestEvaluateListsFactors(t *testing.T) {
	res := Evaluate(domain.ProgramPMP, "a@acme.com", domain.RegionNorthAmerica)

	assert.Equal(t, 95, res.Score)
	assert.Equal(t, scoreVersion, res.Version)
	assert.Equal(t, []Factor{
		{Name: "base", Points: 50},
		{Name: "program", Points: 20},
		{Name: "business_email", Points: 20},
		{Name: "region", Points: 5},
	}, res.Factors)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 100, clamp(130))
	assert.Equal(t, 0, clamp(-4))
	assert.Equal(t, 42, clamp(42))
}
