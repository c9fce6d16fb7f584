package payment

import (
	"strconv"

	"cloud.google.com/go/civil"
)

// Metadata is the free-form string map echoed back by the provider on
// every webhook for a session.
type Metadata map[string]string

// Keys written into session metadata.
const (
	KeyLockerID              = "lockerId"
	KeyLockerNumber          = "lockerNumber"
	KeyStartDate             = "startDate"
	KeyEndDate               = "endDate"
	KeyTotalMonths           = "totalMonths"
	KeyRentalAmount          = "rentalAmount"
	KeyKeyDeposit            = "keyDeposit"
	KeyTotalAmount           = "totalAmount"
	KeyCustomerEmail         = "customerEmail"
	KeyStudentRef            = "studentRef"
	KeyStudentEmail          = "studentEmail"
	KeyStudentName           = "studentName"
	KeyIsExtension           = "isExtension"
	KeyOriginalReservationID = "originalReservationId"
)

// Booking is everything a webhook needs to know about what a session paid
// for, without reading the local store.
type Booking struct {
	LockerID              string
	LockerNumber          string
	StartDate             civil.Date
	EndDate               civil.Date
	TotalMonths           int
	RentalAmount          int64
	KeyDeposit            int64
	TotalAmount           int64
	CustomerEmail         string
	StudentRef            string
	StudentEmail          string
	StudentName           string
	IsExtension           bool
	OriginalReservationID string
}

// Metadata encodes b. Empty optional values are omitted.
func (b Booking) Metadata() Metadata {
	m := Metadata{
		KeyLockerID:     b.LockerID,
		KeyLockerNumber: b.LockerNumber,
		KeyStartDate:    b.StartDate.String(),
		KeyEndDate:      b.EndDate.String(),
		KeyTotalMonths:  strconv.Itoa(b.TotalMonths),
		KeyRentalAmount: strconv.FormatInt(b.RentalAmount, 10),
		KeyKeyDeposit:   strconv.FormatInt(b.KeyDeposit, 10),
		KeyTotalAmount:  strconv.FormatInt(b.TotalAmount, 10),
		KeyIsExtension:  strconv.FormatBool(b.IsExtension),
	}
	for k, v := range map[string]string{
		KeyCustomerEmail:         b.CustomerEmail,
		KeyStudentRef:            b.StudentRef,
		KeyStudentEmail:          b.StudentEmail,
		KeyStudentName:           b.StudentName,
		KeyOriginalReservationID: b.OriginalReservationID,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// Booking decodes the map. Malformed numbers and dates decode to zero values.
func (m Metadata) Booking() Booking {
	b := Booking{
		LockerID:              m[KeyLockerID],
		LockerNumber:          m[KeyLockerNumber],
		CustomerEmail:         m[KeyCustomerEmail],
		StudentRef:            m[KeyStudentRef],
		StudentEmail:          m[KeyStudentEmail],
		StudentName:           m[KeyStudentName],
		IsExtension:           m[KeyIsExtension] == "true",
		OriginalReservationID: m[KeyOriginalReservationID],
	}
	b.StartDate, _ = civil.ParseDate(m[KeyStartDate])
	b.EndDate, _ = civil.ParseDate(m[KeyEndDate])
	b.TotalMonths, _ = strconv.Atoi(m[KeyTotalMonths])
	b.RentalAmount, _ = strconv.ParseInt(m[KeyRentalAmount], 10, 64)
	b.KeyDeposit, _ = strconv.ParseInt(m[KeyKeyDeposit], 10, 64)
	b.TotalAmount, _ = strconv.ParseInt(m[KeyTotalAmount], 10, 64)
	return b
}
