package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// Metric names the per-tenant resources metered against plan limits.
type Metric string

const (
	MetricAgents        Metric = "agents"
	MetricConversations Metric = "conversations"
	MetricMessages      Metric = "messages"
	MetricStorageMB     Metric = "storage_mb"
	MetricAIAnalysis    Metric = "ai_analysis"
	MetricAIAutoReply   Metric = "ai_auto_reply"
)

var AllMetrics = []Metric{
	MetricAgents,
	MetricConversations,
	MetricMessages,
	MetricStorageMB,
	MetricAIAnalysis,
	MetricAIAutoReply,
}

func (m Metric) String() string {
	return string(m)
}

func (m Metric) Validate() error {
	if !lo.Contains(AllMetrics, m) {
		return ierr.NewError("invalid metric").
			WithHintf("Unknown usage metric: %s", m).
			WithReportableDetails(map[string]any{
				"metric":         m,
				"allowed_values": AllMetrics,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PlanLimits maps metrics to their per-period caps. A missing or nil
// entry means the metric is unlimited on that plan.
type PlanLimits map[Metric]*int64

// Limit returns the cap for a metric, nil meaning unlimited.
func (l PlanLimits) Limit(m Metric) *int64 {
	if l == nil {
		return nil
	}
	return l[m]
}

// Scan implements the sql.Scanner interface for PlanLimits
func (l *PlanLimits) Scan(value interface{}) error {
	if value == nil {
		*l = make(PlanLimits)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	result := make(PlanLimits)
	err := json.Unmarshal(bytes, &result)
	*l = result
	return err
}

// Value implements the driver.Valuer interface for PlanLimits
func (l PlanLimits) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(make(PlanLimits))
	}
	return json.Marshal(l)
}

// PlanFilter represents filters for plan queries
type PlanFilter struct {
	Filter
	Active *bool `form:"active"`
	Public *bool `form:"public"`
}
