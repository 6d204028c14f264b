// Package extdomain detects when a user's message touches a domain
// outside the panel's core mandate (medical, legal, financial, and so
// on). Detection is pure keyword matching over curated trigger tables;
// no model call is involved, so it is deterministic and free.
package extdomain

import (
	"fmt"
	"strings"
)

// DomainType identifies one out-of-mandate domain.
type DomainType string

const (
	DomainNeurologicalAttention DomainType = "neurological-attention"
	DomainPsychiatric           DomainType = "psychiatric"
	DomainMedical               DomainType = "medical"
	DomainLegal                 DomainType = "legal"
	DomainFinancial             DomainType = "financial"
	DomainEmploymentLegal       DomainType = "employment-legal"
	DomainDiagnostic            DomainType = "diagnostic"
	DomainAddiction             DomainType = "addiction"
)

// Detection is the result of scanning one message. When Detected is
// false all other fields are zero.
type Detection struct {
	Detected       bool       `json:"detected"`
	Domain         DomainType `json:"domain,omitempty"`
	DisplayName    string     `json:"domainDisplayName,omitempty"`
	TriggerWords   []string   `json:"triggerWords,omitempty"`
	SpecialistType string     `json:"specialistType,omitempty"`
}

type domainConfig struct {
	displayName    string
	specialistType string
	triggers       []string
}

// domainOrder fixes the scan order so that a message matching several
// domains always resolves to the same one.
var domainOrder = []DomainType{
	DomainNeurologicalAttention,
	DomainPsychiatric,
	DomainMedical,
	DomainLegal,
	DomainFinancial,
	DomainEmploymentLegal,
	DomainDiagnostic,
	DomainAddiction,
}

var domainTriggers = map[DomainType]domainConfig{
	DomainNeurologicalAttention: {
		displayName:    "neurological / attention",
		specialistType: "a specialist in attention and attention disorders",
		triggers: []string{
			"attention disorder",
			"adhd",
			"add diagnosis",
			"concerta",
			"ritalin",
			"neurologist",
			"attention assessment",
			"attention medication",
			"attention problems",
			"severe concentration difficulties",
			"vyvanse",
			"atomoxetine",
			"strattera",
		},
	},
	DomainPsychiatric: {
		displayName:    "psychiatric",
		specialistType: "a specialist in psychiatry and medication",
		triggers: []string{
			"psychiatrist",
			"psychiatric medication",
			"ssri",
			"antidepressant",
			"mood stabilizer",
			"severe side effects",
			"psychiatric hospitalization",
			"lithium",
			"antipsychotic",
			"benzodiazepine",
			"klonopin",
			"cipralex",
			"seroxat",
			"lexapro",
		},
	},
	DomainMedical: {
		displayName:    "medical",
		specialistType: "a specialist in medical aspects",
		triggers: []string{
			"chronic illness",
			"neurological condition",
			"medical diagnosis",
			"mri",
			"eeg",
			"blood tests",
			"syndrome",
			"surgery",
			"epilepsy",
			"cancer",
			"diabetes",
			"heart disease",
			"autoimmune",
		},
	},
	DomainLegal: {
		displayName:    "legal",
		specialistType: "a specialist in legal aspects",
		triggers: []string{
			"lawyer",
			"attorney",
			"lawsuit",
			"sexual harassment",
			"domestic violence",
			"restraining order",
			"police",
			"filing a complaint",
			"legal contract",
			"legal agreement",
			"divorce",
			"custody",
			"injunction",
		},
	},
	DomainFinancial: {
		displayName:    "financial",
		specialistType: "a specialist in financial aspects",
		triggers: []string{
			"heavy debts",
			"insolvency",
			"bankruptcy",
			"foreclosure",
			"can't pay the mortgage",
			"cannot pay the mortgage",
			"huge loans",
			"financial advisor",
			"accountant",
			"hundreds of thousands in debt",
			"debt collection",
			"financial collapse",
		},
	},
	DomainEmploymentLegal: {
		displayName:    "employment law",
		specialistType: "a specialist in employment law",
		triggers: []string{
			"wrongful termination",
			"unlawful dismissal",
			"demotion of terms",
			"workplace discrimination",
			"workplace abuse",
			"labor court",
			"harassment at work",
			"dismissal hearing",
			"workers' rights",
			"employee rights",
		},
	},
	DomainDiagnostic: {
		displayName:    "diagnostic",
		specialistType: "a specialist in psychological assessment",
		triggers: []string{
			"didactic assessment",
			"psychodiagnostic assessment",
			"dsm",
			"formal diagnosis",
			"official diagnosis",
			"psychological evaluation",
			"psychometric tests",
			"learning disability assessment",
		},
	},
	DomainAddiction: {
		displayName:    "addiction",
		specialistType: "a specialist in addiction",
		triggers: []string{
			"heavy drug use",
			"alcoholism",
			"gambling addiction",
			"weed all day",
			"marijuana all day",
			"rehab",
			"hard drugs",
			"cocaine",
			"heroin",
			"excessive drinking",
			"alcohol every day",
		},
	},
}

// Detect scans a message for out-of-mandate trigger words. Domains are
// checked in a fixed order and the first one with any match wins; all
// of that domain's matched triggers are reported.
func Detect(userMessage string) Detection {
	normalized := strings.ToLower(userMessage)

	for _, domain := range domainOrder {
		cfg := domainTriggers[domain]
		var matched []string
		for _, trigger := range cfg.triggers {
			if strings.Contains(normalized, trigger) {
				matched = append(matched, trigger)
			}
		}
		if len(matched) > 0 {
			return Detection{
				Detected:       true,
				Domain:         domain,
				DisplayName:    cfg.displayName,
				TriggerWords:   matched,
				SpecialistType: cfg.specialistType,
			}
		}
	}
	return Detection{}
}

// ClarificationQuestion builds the yes/no question shown to the user
// when a detection fires. The specialist offers perspective only, never
// a diagnosis or a concrete legal or financial step.
func ClarificationQuestion(d Detection) string {
	return fmt.Sprintf(
		"You mentioned a topic outside the panel's direct mandate (%s). "+
			"Would you like us to add %s to the conversation, to offer general "+
			"information and perspective, without making a diagnosis or "+
			"recommending a concrete treatment, legal, or financial step?",
		d.DisplayName, d.SpecialistType)
}

// AllDomainTypes returns the supported domain identifiers in scan order.
func AllDomainTypes() []DomainType {
	out := make([]DomainType, len(domainOrder))
	copy(out, domainOrder)
	return out
}
