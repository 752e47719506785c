package enums

// Action codes travel inside callback payloads as raw integers, so every
// decode path must range-check before casting.

type ReportAction int

const (
	ReportActionSpam ReportAction = iota + 1
	ReportActionWarn
	ReportActionTempBan
	ReportActionDismiss
)

func ParseReportAction(code int) (ReportAction, bool) {
	if code < int(ReportActionSpam) || code > int(ReportActionDismiss) {
		return 0, false
	}
	return ReportAction(code), true
}

func (a ReportAction) String() string {
	switch a {
	case ReportActionSpam:
		return "SPAM"
	case ReportActionWarn:
		return "WARN"
	case ReportActionTempBan:
		return "TEMP_BAN"
	case ReportActionDismiss:
		return "DISMISS"
	default:
		return "UNKNOWN"
	}
}

type ImpersonationAction int

const (
	ImpersonationActionConfirmScam ImpersonationAction = iota + 1
	ImpersonationActionFalsePositive
	ImpersonationActionWhitelist
)

func ParseImpersonationAction(code int) (ImpersonationAction, bool) {
	if code < int(ImpersonationActionConfirmScam) || code > int(ImpersonationActionWhitelist) {
		return 0, false
	}
	return ImpersonationAction(code), true
}

func (a ImpersonationAction) String() string {
	switch a {
	case ImpersonationActionConfirmScam:
		return "CONFIRM_SCAM"
	case ImpersonationActionFalsePositive:
		return "FALSE_POSITIVE"
	case ImpersonationActionWhitelist:
		return "WHITELIST"
	default:
		return "UNKNOWN"
	}
}

type ExamAction int

const (
	ExamActionApprove ExamAction = iota + 1
	ExamActionDeny
	ExamActionDenyAndBan
)

func ParseExamAction(code int) (ExamAction, bool) {
	if code < int(ExamActionApprove) || code > int(ExamActionDenyAndBan) {
		return 0, false
	}
	return ExamAction(code), true
}

func (a ExamAction) String() string {
	switch a {
	case ExamActionApprove:
		return "APPROVE"
	case ExamActionDeny:
		return "DENY"
	case ExamActionDenyAndBan:
		return "DENY_AND_BAN"
	default:
		return "UNKNOWN"
	}
}
