package prep

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
	"github.com/geometry-infra/preptools/internal/icon"
	"github.com/geometry-infra/preptools/internal/units"
)

// Governance methods.
const (
	MethodRegisterPRep           = "registerPRep"
	MethodUnregisterPRep         = "unregisterPRep"
	MethodSetPRep                = "setPRep"
	MethodSetGovernanceVariables = "setGovernanceVariables"

	MethodGetPRep      = "getPRep"
	MethodGetPReps     = "getPReps"
	MethodGetMainPReps = "getMainPReps"
	MethodGetSubPReps  = "getSubPReps"
	MethodGetPRepTerm  = "getPRepTerm"
)

// RegistrationStake is the deposit locked by registerPRep, in loop.
func RegistrationStake() *big.Int {
	return units.ICX(2000)
}

// Operation is one state-changing governance call. Step limit and value
// are never taken from params.
type Operation interface {
	Method() string
	Params() map[string]any
	Value() *big.Int
	Validate() error
}

// PRepFields are the public registration details of a PRep. JSON tags
// match the on-chain parameter names.
type PRepFields struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	City        string `json:"city,omitempty"`
	Website     string `json:"website,omitempty"`
	Details     string `json:"details,omitempty"`
	P2PEndpoint string `json:"p2pEndpoint,omitempty"`
	NodeAddress string `json:"nodeAddress,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
}

func (f PRepFields) params() map[string]any {
	out := map[string]any{}
	set := func(key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[key] = v
		}
	}
	set("name", f.Name)
	set("email", f.Email)
	set("country", f.Country)
	set("city", f.City)
	set("website", f.Website)
	set("details", f.Details)
	set("p2pEndpoint", f.P2PEndpoint)
	set("nodeAddress", f.NodeAddress)
	set("publicKey", f.PublicKey)
	return out
}

// Merge returns f with every non-empty field of override applied.
func (f PRepFields) Merge(override PRepFields) PRepFields {
	pick := func(base, v string) string {
		if strings.TrimSpace(v) != "" {
			return v
		}
		return base
	}
	return PRepFields{
		Name:        pick(f.Name, override.Name),
		Email:       pick(f.Email, override.Email),
		Country:     pick(f.Country, override.Country),
		City:        pick(f.City, override.City),
		Website:     pick(f.Website, override.Website),
		Details:     pick(f.Details, override.Details),
		P2PEndpoint: pick(f.P2PEndpoint, override.P2PEndpoint),
		NodeAddress: pick(f.NodeAddress, override.NodeAddress),
		PublicKey:   pick(f.PublicKey, override.PublicKey),
	}
}

// validateFormats checks the values params() would send.
func (f PRepFields) validateFormats() error {
	if nodeAddress := strings.TrimSpace(f.NodeAddress); nodeAddress != "" {
		if err := icon.ValidateEOA(nodeAddress); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "nodeAddress", err)
		}
	}
	if email := strings.TrimSpace(f.Email); email != "" && !strings.Contains(email, "@") {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid email %q", email))
	}
	if publicKey := strings.TrimSpace(f.PublicKey); publicKey != "" && !strings.HasPrefix(publicKey, "0x") {
		return clierr.New(clierr.CodeUsage, "publicKey must be 0x-prefixed hex")
	}
	return nil
}

// RegisterPRep registers the sender as a PRep and locks the stake.
type RegisterPRep struct {
	PRepFields
}

func (RegisterPRep) Method() string { return MethodRegisterPRep }
func (r RegisterPRep) Params() map[string]any { return r.params() }
func (RegisterPRep) Value() *big.Int { return RegistrationStake() }

func (r RegisterPRep) Validate() error {
	required := []struct{ key, value string }{
		{"name", r.Name},
		{"email", r.Email},
		{"country", r.Country},
		{"city", r.City},
		{"website", r.Website},
		{"details", r.Details},
		{"p2pEndpoint", r.P2PEndpoint},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return clierr.New(clierr.CodeUsage, "registerPRep requires "+strings.Join(missing, ", "))
	}
	return r.validateFormats()
}

// UnregisterPRep withdraws the sender's registration.
type UnregisterPRep struct{}

func (UnregisterPRep) Method() string { return MethodUnregisterPRep }
func (UnregisterPRep) Params() map[string]any { return map[string]any{} }
func (UnregisterPRep) Value() *big.Int { return new(big.Int) }
func (UnregisterPRep) Validate() error { return nil }

// SetPRep updates the fields that are set; empty fields are left unchanged.
type SetPRep struct {
	PRepFields
}

func (SetPRep) Method() string { return MethodSetPRep }
func (s SetPRep) Params() map[string]any { return s.params() }
func (SetPRep) Value() *big.Int { return new(big.Int) }

func (s SetPRep) Validate() error {
	if len(s.params()) == 0 {
		return clierr.New(clierr.CodeUsage, "setPRep requires at least one field")
	}
	return s.validateFormats()
}

// SetGovernanceVariables proposes a new irep, in loop.
type SetGovernanceVariables struct {
	IRep *big.Int
}

func (SetGovernanceVariables) Method() string { return MethodSetGovernanceVariables }

func (s SetGovernanceVariables) Params() map[string]any {
	return map[string]any{"irep": units.Hex(s.IRep)}
}

func (SetGovernanceVariables) Value() *big.Int { return new(big.Int) }

func (s SetGovernanceVariables) Validate() error {
	if s.IRep == nil {
		return clierr.New(clierr.CodeUsage, "setGovernanceVariables requires irep")
	}
	if s.IRep.Sign() < 0 {
		return clierr.New(clierr.CodeUsage, "irep must be non-negative")
	}
	return nil
}
