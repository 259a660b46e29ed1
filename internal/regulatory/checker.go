package regulatory

import (
	"context"
	_ "embed"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/broker-verify/internal/model"
)

const (
	unmatchedConfidence = 0.3
	genericConfidence   = 0.1
)

//go:embed registers.yaml
var registersYAML []byte

// Checker verifies a broker against one authority's register.
type Checker interface {
	// Authority returns the authority code, e.g. "FCA".
	Authority() string
	Check(ctx context.Context, brokerName, license string) (model.RegulatoryCheck, error)
}

// Register describes one authority and the brokers known to hold a licence
// with it.
type Register struct {
	Code            string   `yaml:"code"`
	Name            string   `yaml:"name"`
	RegisterURL     string   `yaml:"register_url"`
	Reliability     float64  `yaml:"reliability"`
	MatchConfidence float64  `yaml:"match_confidence"`
	LicenseBonus    float64  `yaml:"license_bonus"`
	BusinessAddress string   `yaml:"business_address"`
	Services        []string `yaml:"services"`
	Brokers         []string `yaml:"brokers"`
}

type registerFile struct {
	Authorities []Register `yaml:"authorities"`
}

// LoadRegisters parses a register table in the embedded format.
func LoadRegisters(raw []byte) ([]Register, error) {
	var f registerFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "regulatory: parse registers")
	}
	for _, r := range f.Authorities {
		if r.Code == "" {
			return nil, eris.New("regulatory: register without code")
		}
	}
	return f.Authorities, nil
}

// DefaultCheckers returns one checker per authority in the embedded table.
func DefaultCheckers() []Checker {
	regs, err := LoadRegisters(registersYAML)
	if err != nil {
		panic(err)
	}
	out := make([]Checker, 0, len(regs))
	for _, r := range regs {
		out = append(out, NewRegisterChecker(r))
	}
	return out
}

// RegisterChecker matches broker names against a register snapshot.
type RegisterChecker struct {
	reg Register
	now func() time.Time
}

// NewRegisterChecker creates a checker for reg.
func NewRegisterChecker(reg Register) *RegisterChecker {
	return &RegisterChecker{reg: reg, now: time.Now}
}

func (c *RegisterChecker) Authority() string { return c.reg.Code }

// Check reports active when the broker name and a register entry contain one
// another, and not_found otherwise.
func (c *RegisterChecker) Check(ctx context.Context, brokerName, license string) (model.RegulatoryCheck, error) {
	if err := ctx.Err(); err != nil {
		return model.RegulatoryCheck{}, eris.Wrapf(err, "regulatory: %s check", c.reg.Code)
	}
	check := model.RegulatoryCheck{
		Authority:     c.reg.Code,
		AuthorityName: c.reg.Name,
		LicenseNumber: license,
		Status:        model.LicenseNotFound,
		Confidence:    unmatchedConfidence,
		LastChecked:   c.now().UTC(),
	}
	if !c.matches(brokerName) {
		return check, nil
	}

	check.Status = model.LicenseActive
	check.Confidence = c.reg.MatchConfidence
	if license != "" && c.reg.LicenseBonus > 0 {
		check.Confidence = math.Min(check.Confidence+c.reg.LicenseBonus, 1.0)
	}
	check.Details = &model.AuthorityDetails{
		OfficialName:       brokerName,
		AuthorizedServices: c.reg.Services,
		BusinessAddress:    c.reg.BusinessAddress,
	}
	return check, nil
}

func (c *RegisterChecker) matches(brokerName string) bool {
	name := strings.ToLower(strings.TrimSpace(brokerName))
	if name == "" {
		return false
	}
	for _, known := range c.reg.Brokers {
		if strings.Contains(name, known) || strings.Contains(known, name) {
			return true
		}
	}
	return false
}

// GenericChecker handles authorities with no register integration.
type GenericChecker struct {
	authority string
	now       func() time.Time
}

// NewGenericChecker creates a checker for an unsupported authority.
func NewGenericChecker(authority string) *GenericChecker {
	return &GenericChecker{authority: authority, now: time.Now}
}

func (c *GenericChecker) Authority() string { return c.authority }

func (c *GenericChecker) Check(_ context.Context, _ string, license string) (model.RegulatoryCheck, error) {
	return model.RegulatoryCheck{
		Authority:     c.authority,
		LicenseNumber: license,
		Status:        model.LicenseNotFound,
		Confidence:    genericConfidence,
		LastChecked:   c.now().UTC(),
		Notes:         "Manual verification required for this regulator",
	}, nil
}
