package enums

type CaseKind string

const (
	CaseKindContentReport      CaseKind = "CONTENT_REPORT"
	CaseKindImpersonationAlert CaseKind = "IMPERSONATION_ALERT"
	CaseKindExamFailure        CaseKind = "EXAM_FAILURE"
)

func ParseCaseKind(raw string) (CaseKind, bool) {
	switch CaseKind(raw) {
	case CaseKindContentReport, CaseKindImpersonationAlert, CaseKindExamFailure:
		return CaseKind(raw), true
	default:
		return "", false
	}
}

type CaseStatus string

const (
	CaseStatusPending   CaseStatus = "PENDING"
	CaseStatusReviewed  CaseStatus = "REVIEWED"
	CaseStatusDismissed CaseStatus = "DISMISSED"
)
