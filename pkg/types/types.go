// Package types 定義了 adaptive-queue 的消費端任務與資源服務之間共用的領域模型
package types

import (
	"fmt"
)

// ResourceKind 資源種類（對應資源服務上的一個集合）
type ResourceKind string

// 定義資源種類常數
const (
	KindAssets     ResourceKind = "assets"
	KindEvents     ResourceKind = "events"
	KindTimeSeries ResourceKind = "timeseries"
)

// Resource 可建立/更新的資源
// 伺服器指派的欄位（ID 與時間戳）在建立請求中會被忽略
type Resource struct {
	// 伺服器指派
	ID              int64 `json:"id,omitempty"`
	CreatedTime     int64 `json:"createdTime,omitempty"`     // Unix 毫秒
	LastUpdatedTime int64 `json:"lastUpdatedTime,omitempty"` // Unix 毫秒

	// 使用者欄位
	ExternalID  string            `json:"externalId,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// 僅時間序列使用
	IsString bool `json:"isString,omitempty"`
}

// InsertableCopy 返回清除伺服器指派欄位後的副本，可直接再次建立
func (r Resource) InsertableCopy() Resource {
	c := r
	c.ID = 0
	c.CreatedTime = 0
	c.LastUpdatedTime = 0
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// UpsertResult upsert 的結果：新建立的與已更新的資源
type UpsertResult struct {
	Created []Resource `json:"created"`
	Updated []Resource `json:"updated"`
}

// Extend 將另一個 UpsertResult 依序附加在後面
func (u *UpsertResult) Extend(other any) error {
	o, ok := other.(*UpsertResult)
	if !ok {
		return fmt.Errorf("cannot extend *UpsertResult with %T", other)
	}
	u.Created = append(u.Created, o.Created...)
	u.Updated = append(u.Updated, o.Updated...)
	return nil
}

// ============================================================================
// 資料點
// ============================================================================

// Aggregate 名稱
const (
	AggregateCount   = "count"
	AggregateSum     = "sum"
	AggregateAverage = "average"
	AggregateMin     = "min"
	AggregateMax     = "max"
)

// Datapoint 單一資料點；原始資料點帶 Value 或 StringValue，
// 聚合資料點帶 Aggregates
type Datapoint struct {
	Timestamp   int64              `json:"timestamp"` // Unix 毫秒
	Value       *float64           `json:"value,omitempty"`
	StringValue *string            `json:"stringValue,omitempty"`
	Aggregates  map[string]float64 `json:"aggregates,omitempty"`
}

// NumericPoint 建立數值資料點
func NumericPoint(ts int64, v float64) Datapoint {
	return Datapoint{Timestamp: ts, Value: &v}
}

// StringPoint 建立字串資料點
func StringPoint(ts int64, v string) Datapoint {
	return Datapoint{Timestamp: ts, StringValue: &v}
}

// Datapoints 一個時間序列在一段區間內的資料點（依時間遞增）
type Datapoints struct {
	ID         int64       `json:"id"`
	ExternalID string      `json:"externalId,omitempty"`
	IsString   bool        `json:"isString,omitempty"`
	Points     []Datapoint `json:"datapoints"`
}

// Len 資料點數量
func (d *Datapoints) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Points)
}

// Timestamps 返回所有時間戳
func (d *Datapoints) Timestamps() []int64 {
	out := make([]int64, d.Len())
	for i, p := range d.Points {
		out[i] = p.Timestamp
	}
	return out
}

// Aggregate 返回指定聚合的值序列（缺少的點略過）
func (d *Datapoints) Aggregate(name string) []float64 {
	var out []float64
	for _, p := range d.Points {
		if v, ok := p.Aggregates[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Last 最後一個資料點的時間戳；空集合時 ok 為 false
func (d *Datapoints) Last() (int64, bool) {
	if d.Len() == 0 {
		return 0, false
	}
	return d.Points[len(d.Points)-1].Timestamp, true
}

// Extend 將另一段資料點附加在後面；識別欄位以先填入者為準
func (d *Datapoints) Extend(other any) error {
	o, ok := other.(*Datapoints)
	if !ok {
		return fmt.Errorf("cannot extend *Datapoints with %T", other)
	}
	if o == nil {
		return nil
	}
	if d.ID == 0 && d.ExternalID == "" {
		d.ID, d.ExternalID, d.IsString = o.ID, o.ExternalID, o.IsString
	}
	d.Points = append(d.Points, o.Points...)
	return nil
}

// DatapointsList 多個時間序列的查詢結果，順序與查詢項目相同
type DatapointsList []*Datapoints

// DatapointsQuery 單一時間序列的區間查詢
// Start/End 為 Unix 毫秒，區間為 [Start, End)
type DatapointsQuery struct {
	ID                   int64    `json:"id,omitempty"`
	ExternalID           string   `json:"externalId,omitempty"`
	Start                int64    `json:"start"`
	End                  int64    `json:"end"`
	Aggregates           []string `json:"aggregates,omitempty"`
	Granularity          string   `json:"granularity,omitempty"`
	IncludeOutsidePoints bool     `json:"includeOutsidePoints,omitempty"`
	Limit                int      `json:"limit,omitempty"` // 0 表示不限
}

// Identifier 用於錯誤訊息與日誌
func (q DatapointsQuery) Identifier() string {
	if q.ExternalID != "" {
		return "externalId=" + q.ExternalID
	}
	return fmt.Sprintf("id=%d", q.ID)
}

// ============================================================================
// 快照
// ============================================================================

// SnapshotData 快照資料，用於資源服務狀態的持久化和恢復
type SnapshotData struct {
	Resources  map[ResourceKind][]Resource `json:"resources"`  // 各種類的資源（依建立順序）
	Datapoints map[int64][]Datapoint       `json:"datapoints"` // 時間序列 ID → 資料點
	SchemaVer  int                         `json:"schema_ver"` // 資料結構版本號，用於向後相容性
	LastID     int64                       `json:"last_id"`    // 最後指派的資源 ID
}
