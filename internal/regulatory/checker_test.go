package regulatory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/broker-verify/internal/model"
)

func registerFor(t *testing.T, code string) Register {
	t.Helper()
	regs, err := LoadRegisters(registersYAML)
	require.NoError(t, err)
	for _, r := range regs {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("register %s not found", code)
	return Register{}
}

func TestLoadRegisters(t *testing.T) {
	regs, err := LoadRegisters(registersYAML)
	require.NoError(t, err)

	codes := make([]string, 0, len(regs))
	for _, r := range regs {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"FCA", "ASIC", "CySEC", "FINRA", "SEC"}, codes)
}

func TestLoadRegisters_Invalid(t *testing.T) {
	_, err := LoadRegisters([]byte("authorities: [{name: nameless}]"))
	require.Error(t, err)

	_, err = LoadRegisters([]byte("authorities: {"))
	require.Error(t, err)
}

func TestRegisterChecker(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		code       string
		broker     string
		license    string
		status     model.LicenseStatus
		confidence float64
	}{
		{"fca match", "FCA", "Pepperstone", "", model.LicenseActive, 0.7},
		{"fca match with license", "FCA", "Pepperstone UK", "684312", model.LicenseActive, 0.9},
		{"fca no match", "FCA", "Obscure FX", "", model.LicenseNotFound, 0.3},
		{"asic license ignored", "ASIC", "IC Markets", "335692", model.LicenseActive, 0.7},
		{"cysec match", "CySEC", "XM", "", model.LicenseActive, 0.7},
		{"finra match", "FINRA", "OANDA", "", model.LicenseActive, 0.8},
		{"sec never matches", "SEC", "Interactive Brokers", "", model.LicenseNotFound, 0.3},
		{"empty name", "FCA", "  ", "", model.LicenseNotFound, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRegisterChecker(registerFor(t, tt.code))
			check, err := c.Check(ctx, tt.broker, tt.license)
			require.NoError(t, err)
			assert.Equal(t, tt.code, check.Authority)
			assert.Equal(t, tt.status, check.Status)
			assert.InDelta(t, tt.confidence, check.Confidence, 1e-9)
			assert.Equal(t, tt.license, check.LicenseNumber)
			if tt.status == model.LicenseActive {
				require.NotNil(t, check.Details)
				assert.Equal(t, tt.broker, check.Details.OfficialName)
				assert.NotEmpty(t, check.Details.AuthorizedServices)
			} else {
				assert.Nil(t, check.Details)
			}
		})
	}
}

func TestRegisterChecker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRegisterChecker(registerFor(t, "FCA")).Check(ctx, "IG", "")
	require.Error(t, err)
}

func TestGenericChecker(t *testing.T) {
	check, err := NewGenericChecker("BaFin").Check(context.Background(), "Any Broker", "X1")
	require.NoError(t, err)
	assert.Equal(t, "BaFin", check.Authority)
	assert.Equal(t, model.LicenseNotFound, check.Status)
	assert.Equal(t, 0.1, check.Confidence)
	assert.Equal(t, "X1", check.LicenseNumber)
	assert.Contains(t, check.Notes, "Manual verification required")
}
