package models

// Role is the closed set of principals that can own a wallet.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleAgent     Role = "agent"
	RoleCompany   Role = "company"
	RoleAdmin     Role = "admin"
	RolePlatform  Role = "platform"
)

// Valid reports whether the role is a known principal type.
func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleAgent, RoleCompany, RoleAdmin, RolePlatform:
		return true
	}
	return false
}

// CanOriginateExternalDeposit reports whether the role may push an external
// deposit into a passenger wallet. Passengers themselves cannot.
func (r Role) CanOriginateExternalDeposit() bool {
	switch r {
	case RoleAgent, RolePlatform, RoleAdmin:
		return true
	}
	return false
}

// CanWithdraw reports whether the role may request an external disbursement.
func (r Role) CanWithdraw() bool {
	switch r {
	case RoleCompany, RolePlatform, RoleAdmin:
		return true
	}
	return false
}

// CanTransfer reports whether the role may move funds wallet-to-wallet.
func (r Role) CanTransfer() bool {
	switch r {
	case RolePassenger, RoleAgent:
		return true
	}
	return false
}
