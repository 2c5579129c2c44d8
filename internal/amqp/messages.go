package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/services"
)

// ThresholdCheckMessage asks the threshold worker to evaluate the
// allocation for a category on a date. It carries no amounts: the worker
// reads current totals from the store.
type ThresholdCheckMessage struct {
	Owner      string    `json:"owner"`
	CategoryID string    `json:"categoryId"`
	Date       core.Date `json:"date"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewThresholdCheckMessage(check services.ThresholdCheck) *ThresholdCheckMessage {
	return &ThresholdCheckMessage{
		Owner:      check.Owner,
		CategoryID: check.CategoryID,
		Date:       check.Date,
		Timestamp:  time.Now(),
	}
}

func (m *ThresholdCheckMessage) Validate() error {
	if strings.TrimSpace(m.Owner) == "" || strings.TrimSpace(m.CategoryID) == "" {
		return fmt.Errorf("%w: owner and category are required", core.ErrValidation)
	}
	if m.Date.IsZero() {
		return fmt.Errorf("%w: date is required", core.ErrInvalidDate)
	}
	return nil
}

// Check converts the message back to the evaluator's request.
func (m *ThresholdCheckMessage) Check() services.ThresholdCheck {
	return services.ThresholdCheck{Owner: m.Owner, CategoryID: m.CategoryID, Date: m.Date}
}

// ToJSON converts the message to JSON bytes
func (m *ThresholdCheckMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ThresholdCheckMessageFromJSON(data []byte) (*ThresholdCheckMessage, error) {
	var msg ThresholdCheckMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
