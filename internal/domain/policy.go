package domain

// Policy names the frozen allocation policy selected per loan (spec §4.7).
type Policy string

const (
	PolicyCurrent      Policy = "current"
	PolicyDelinquent   Policy = "delinquent"
	PolicyDefault      Policy = "default"
	PolicyChargedOff   Policy = "charged_off"
	PolicySuspense     Policy = "suspense"
	PolicyConservative Policy = "conservative"
)

// PolicyFlags are the behavior switches a policy carries (spec §4.7).
type PolicyFlags struct {
	ApplyLateFees             bool
	AcceleratePayoff          bool
	NotifyInvestors           bool
	EscalateToLegal           bool
	AllowPartialPayments      bool
	RequireSupervisorApproval bool
}

// PolicyConfig is the frozen configuration bound to a Policy (spec §4.7).
// Waterfall lists the allocation targets to walk in order; policies that
// route the entire payment to one account instead of a waterfall (recovery,
// suspense) leave Waterfall empty and set DirectAccount.
type PolicyConfig struct {
	Name           Policy
	Waterfall      []AllocationTarget
	DirectAccount  Account
	RequiresReview bool
	AutoApply      bool
	MaxDaysLate    int
	Flags          PolicyFlags
}

// Policies is the frozen table of spec §4.7.
var Policies = map[Policy]PolicyConfig{
	PolicyCurrent: {
		Name:      PolicyCurrent,
		Waterfall: []AllocationTarget{TargetAccruedInterest, TargetScheduledPrincipal, TargetEscrowShortage, TargetCurrentEscrow, TargetLateFees},
		AutoApply: true,
		Flags:     PolicyFlags{AllowPartialPayments: true},
	},
	PolicyDelinquent: {
		Name:      PolicyDelinquent,
		Waterfall: []AllocationTarget{TargetLateFees, TargetAccruedInterest, TargetScheduledPrincipal, TargetEscrowShortage, TargetCurrentEscrow},
		AutoApply: true,
		Flags:     PolicyFlags{ApplyLateFees: true, NotifyInvestors: true},
	},
	PolicyDefault: {
		Name:      PolicyDefault,
		Waterfall: []AllocationTarget{TargetLateFees, TargetAccruedInterest, TargetScheduledPrincipal},
		AutoApply: false,
		Flags:     PolicyFlags{AcceleratePayoff: true, EscalateToLegal: true, RequireSupervisorApproval: true},
	},
	PolicyChargedOff: {
		Name:          PolicyChargedOff,
		DirectAccount: AccountRecovery,
		AutoApply:     false,
		Flags:         PolicyFlags{AcceleratePayoff: true, EscalateToLegal: true, AllowPartialPayments: false},
	},
	PolicySuspense: {
		Name:          PolicySuspense,
		DirectAccount: AccountSuspense,
		AutoApply:     false,
		Flags:         PolicyFlags{RequireSupervisorApproval: true},
	},
	PolicyConservative: {
		Name:          PolicyConservative,
		DirectAccount: AccountSuspense,
		AutoApply:     false,
		Flags:         PolicyFlags{NotifyInvestors: true, RequireSupervisorApproval: true},
	},
}
