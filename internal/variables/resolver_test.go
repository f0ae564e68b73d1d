package variables

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ResolverSuite struct {
	suite.Suite
	ctx Context
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = Context{
		Employee: MapProvider{
			"full_name":  "Ana Pérez",
			"start_date": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Organization: MapProvider{"name": "Acme GmbH"},
		Request:      MapProvider{"vacation_days": 14},
		Now:          time.Date(2026, 8, 31, 15, 4, 5, 0, time.UTC),
	}
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) TestResolve() {
	s.Run("resolves provider fields", func() {
		s.Equal("Ana Pérez", Resolve("employee.full_name", s.ctx))
		s.Equal("Acme GmbH", Resolve("organization.name", s.ctx))
		s.Equal(14, Resolve("request.vacation_days", s.ctx))
	})

	s.Run("system namespace is computed", func() {
		s.Equal("2026-08-31", Resolve("system.current_date", s.ctx))
		s.Equal(2026, Resolve("system.current_year", s.ctx))
	})

	s.Run("missing field resolves to nil", func() {
		s.Nil(Resolve("employee.shoe_size", s.ctx))
	})

	s.Run("unknown namespace resolves to nil", func() {
		s.Nil(Resolve("galaxy.name", s.ctx))
	})

	s.Run("undotted key resolves to nil", func() {
		s.Nil(Resolve("full_name", s.ctx))
	})

	s.Run("absent provider resolves to nil", func() {
		s.Nil(Resolve("employee.full_name", Context{}))
	})
}

func (s *ResolverSuite) TestValidate() {
	placeholders := []string{"Full Name", "Company", "Missing Thing"}
	mappings := map[string]string{
		"Full Name":     "employee.full_name",
		"Company":       "organization.name",
		"Missing Thing": "request.approval_code",
	}

	report := Validate(placeholders, mappings, s.ctx)

	s.False(report.Valid)
	s.Equal(2, report.ResolvedCount)
	s.Require().Len(report.Missing, 1)
	s.Equal("Missing Thing", report.Missing[0].Placeholder)
	s.Equal("request.approval_code", report.Missing[0].Key)
	s.Equal("request", report.Missing[0].Namespace)
}

func (s *ResolverSuite) TestValidateUnmappedPlaceholderUsesItself() {
	report := Validate([]string{"employee.full_name"}, nil, s.ctx)
	s.True(report.Valid)
	s.Equal(1, report.ResolvedCount)
}

func (s *ResolverSuite) TestResolveAll() {
	placeholders := []string{"Full Name", "Start Date", "Days", "Unmapped"}
	mappings := map[string]string{
		"Full Name":  "employee.full_name",
		"Start Date": "employee.start_date",
		"Days":       "request.vacation_days",
	}

	values := ResolveAll(placeholders, mappings, s.ctx)

	s.Equal("Ana Pérez", values["Full Name"])
	s.Equal("2024-03-01", values["Start Date"])
	s.Equal("14", values["Days"])
	_, present := values["Unmapped"]
	s.False(present)
}

type NormalizeSuite struct {
	suite.Suite
}

func TestNormalizeSuite(t *testing.T) {
	suite.Run(t, new(NormalizeSuite))
}

func (s *NormalizeSuite) TestNormalize() {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Full Name", "full_name"},
		{"strips accents", "Día de Inicio", "dia_de_inicio"},
		{"collapses separators", "start  -  date", "start_date"},
		{"mixed separators", "Fecha_de-Nacimiento", "fecha_de_nacimiento"},
		{"trims edges", "  name  ", "name"},
		{"empty stays empty", "", ""},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, Normalize(tc.in))
		})
	}
}

func (s *NormalizeSuite) TestEquivalent() {
	s.True(Equivalent("Día de Inicio", "dia_de_inicio"))
	s.True(Equivalent("FULL NAME", "full-name"))
	s.False(Equivalent("full_name", "first_name"))
}

func (s *NormalizeSuite) TestAutoMap() {
	known := []string{"employee.full_name", "employee.start_date", "organization.name"}

	s.Run("matches on the field part", func() {
		mapped := AutoMap([]string{"Full Name", "Start Date"}, known)
		s.Equal("employee.full_name", mapped["Full Name"])
		s.Equal("employee.start_date", mapped["Start Date"])
	})

	s.Run("accented placeholder still binds", func() {
		mapped := AutoMap([]string{"Fúll Náme"}, known)
		s.Equal("employee.full_name", mapped["Fúll Náme"])
	})

	s.Run("unknown placeholder is left unmapped", func() {
		mapped := AutoMap([]string{"Shoe Size"}, known)
		_, present := mapped["Shoe Size"]
		s.False(present)
	})

	s.Run("first key wins on field collision", func() {
		mapped := AutoMap([]string{"Name"}, []string{"organization.name", "employee.name"})
		s.Equal("organization.name", mapped["Name"])
	})
}
