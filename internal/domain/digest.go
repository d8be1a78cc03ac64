package domain

// UnreadDigest is one user's unread notification backlog, the input row
// for the daily digest job.
type UnreadDigest struct {
	UserID    string
	CompanyID string
	Unread    int
}
