package model

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Student is a renter known by their school student id.
type Student struct {
	ID           string    `json:"id"`
	StudentName  string    `json:"studentName"`
	StudentID    string    `json:"studentId"`
	StudentEmail string    `json:"studentEmail"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// WaitlistStatus tracks how far a waitlisted person has been contacted.
type WaitlistStatus string

const (
	WaitlistNone      WaitlistStatus = "none"
	WaitlistContacted WaitlistStatus = "contacted"
	WaitlistLinkSent  WaitlistStatus = "link_sent"
	WaitlistNotNeeded WaitlistStatus = "not_needed"
	WaitlistPaid      WaitlistStatus = "paid"
)

// ParseWaitlistStatus validates s. An empty string yields WaitlistNone.
func ParseWaitlistStatus(s string) (WaitlistStatus, error) {
	switch st := WaitlistStatus(s); st {
	case "":
		return WaitlistNone, nil
	case WaitlistNone, WaitlistContacted, WaitlistLinkSent, WaitlistNotNeeded, WaitlistPaid:
		return st, nil
	}
	return "", fmt.Errorf("unknown waitlist status %q", s)
}

// WaitlistEntry is a person waiting for a locker to free up.
type WaitlistEntry struct {
	ID                 string         `json:"id"`
	FullName           string         `json:"fullName"`
	Email              string         `json:"email"`
	StudentID          string         `json:"studentId"`
	PotentialStartDate civil.Date     `json:"potentialStartDate"`
	PotentialEndDate   civil.Date     `json:"potentialEndDate"`
	Status             WaitlistStatus `json:"status"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// NormalizeEmail lower-cases and trims an address for comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
