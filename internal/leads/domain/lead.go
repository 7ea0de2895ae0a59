// Package domain holds the lead and sequence types shared by the leads packages.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Program is a certification program a promotion code was claimed for.
type Program string

const (
	ProgramPMP    Program = "PMP"
	ProgramCAPM   Program = "CAPM"
	ProgramPMICP  Program = "PMI-CP"
	ProgramPMIACP Program = "PMI-ACP"
)

// Programs lists every program the capture parser recognises.
var Programs = []Program{ProgramPMP, ProgramCAPM, ProgramPMICP, ProgramPMIACP}

// ParseProgram matches s against the program enum, ignoring case.
func ParseProgram(s string) (Program, bool) {
	upper := Program(strings.ToUpper(strings.TrimSpace(s)))
	for _, p := range Programs {
		if p == upper {
			return p, true
		}
	}
	return "", false
}

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusConverted    Status = "converted"
	StatusUnsubscribed Status = "unsubscribed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusConverted, StatusUnsubscribed:
		return true
	}
	return false
}

// AcceptsNurture reports whether pending steps of a lead in this status may still be sent.
func (s Status) AcceptsNurture() bool {
	return s != StatusConverted && s != StatusUnsubscribed
}

const (
	RegionNorthAmerica = "North America"
	RegionEurope       = "Europe"
	RegionAustralia    = "Australia"
	RegionUnknown      = "Unknown"
)

// Candidate is what the parser extracts from one capture email.
type Candidate struct {
	Program       Program
	Email         string
	FirstName     string
	LastName      string
	Region        string
	PromoCode     string
	EnrollmentURL string
}

// Lead is a captured prospect, unique per (Email, Program).
type Lead struct {
	ID              uuid.UUID
	Email           string
	Program         Program
	FirstName       string
	LastName        string
	Region          string
	PromoCode       string
	EnrollmentURL   string
	Score           int
	Status          Status
	SourceMessageID *string
	ExternalCRMRef  *string
	CapturedAt      time.Time
	ConvertedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FullName joins first and last name.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}
