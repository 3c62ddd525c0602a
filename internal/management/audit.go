package management

import (
	"context"
	"encoding/json"
	"time"

	"sieve/pkg/models"
)

type AuditLog struct {
	ID           string                 `json:"id"`
	FilterSetID  *string                `json:"filter_set_id,omitempty"`
	Action       string                 `json:"action"`
	OldValue     map[string]interface{} `json:"old_value,omitempty"`
	NewValue     map[string]interface{} `json:"new_value,omitempty"`
	ChangedBy    string                 `json:"changed_by"`
	ChangeReason string                 `json:"change_reason,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

type requestInfoKey struct{}

// RequestInfo identifies who made a change and why.
type RequestInfo struct {
	ChangedBy    string
	ChangeReason string
	IPAddress    string
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	if info.ChangedBy == "" {
		info.ChangedBy = "system"
	}
	return info
}

func newAuditLog(ctx context.Context, filterSetID, action string, oldValue, newValue map[string]interface{}) *AuditLog {
	info := requestInfoFrom(ctx)
	return &AuditLog{
		FilterSetID:  &filterSetID,
		Action:       action,
		OldValue:     oldValue,
		NewValue:     newValue,
		ChangedBy:    info.ChangedBy,
		ChangeReason: info.ChangeReason,
		IPAddress:    info.IPAddress,
	}
}

func filterSetToMap(set *models.FilterSet) map[string]interface{} {
	if set == nil {
		return nil
	}
	data, err := json.Marshal(set)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
