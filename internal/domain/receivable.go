package domain

import (
	"fmt"
	"time"
)

// Receivable represents a single duplicata (trade receivable) submitted for
// fraud scoring. Records are immutable once ingested; dates are carried as
// strings because malformed dates must flow through scoring as a fraud
// signal rather than be rejected at the boundary.
type Receivable struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenantId"`
	Drawer       string  `json:"drawer"`
	Debtor       string  `json:"debtor"`
	Amount       float64 `json:"amount"`
	IssueDate    string  `json:"issueDate"`
	MaturityDate string  `json:"maturityDate"`
	DocType      string  `json:"docType"`
	FiscalLinked bool    `json:"fiscalLinked"`
	Status       string  `json:"status"`
}

// Date layouts accepted for issue/maturity dates, tried in order.
var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

// ParseDate parses a receivable date string.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// Validate checks that all required fields are present.
func (r *Receivable) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("id is required")
	case r.Drawer == "":
		return fmt.Errorf("drawer is required")
	case r.Debtor == "":
		return fmt.Errorf("debtor is required")
	case r.Amount <= 0:
		return fmt.Errorf("amount must be positive")
	case r.IssueDate == "":
		return fmt.Errorf("issueDate is required")
	case r.MaturityDate == "":
		return fmt.Errorf("maturityDate is required")
	case r.DocType == "":
		return fmt.Errorf("docType is required")
	case r.Status == "":
		return fmt.Errorf("status is required")
	}
	return nil
}
