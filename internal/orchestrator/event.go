package orchestrator

import (
	"encoding/json"

	"github.com/qs3c/site_compare_server/internal/parser"
)

// EventType 事件流中的事件名
type EventType string

const (
	EventInit     EventType = "init"
	EventStartURL EventType = "start_url"
	EventProgress EventType = "progress"
	EventDebug    EventType = "debug"
	EventResult   EventType = "result"
	EventDone     EventType = "done"
)

// Event 一条有序事件
type Event struct {
	Type    EventType   `json:"event"`
	Payload interface{} `json:"data"`
}

// Data 序列化后的 payload
func (e Event) Data() ([]byte, error) {
	return json.Marshal(e.Payload)
}

type InitPayload struct {
	BatchID string       `json:"batch_id,omitempty"`
	Total   int          `json:"total"`
	Rows    []parser.Row `json:"rows"`
}

type StartURLPayload struct {
	Index   int     `json:"index"`
	URL     string  `json:"url"`
	Host    string  `json:"host"`
	Percent float64 `json:"percent"`
}

type ProgressPayload struct {
	Index   int     `json:"index"`
	Phase   string  `json:"phase"`
	P       int     `json:"p"`
	Of      int     `json:"of"`
	Percent float64 `json:"percent"`
}

type DebugPayload struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// ResultPayload Data 与 Error 恰好一个存在
type ResultPayload struct {
	Index  int            `json:"index"`
	URL    string         `json:"url"`
	Data   *parser.Record `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type DonePayload struct {
	OK        bool    `json:"ok"`
	Cancelled bool    `json:"cancelled"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
}

// Sink 接收事件；返回错误表示传输层已不可用，批次随即中止
type Sink interface {
	Emit(Event) error
}

type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error {
	return f(e)
}

// Tee 按顺序把事件写入多个 sink，任何一个失败即返回
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) error {
		for _, s := range sinks {
			if err := s.Emit(e); err != nil {
				return err
			}
		}
		return nil
	})
}
