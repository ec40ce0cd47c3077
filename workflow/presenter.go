package workflow

import (
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/types"
)

// Presenter 接收控制器的呈现回调
type Presenter interface {
	SetBusy(busy bool)
	PresentResult(res *publish.Result)
	PresentFailure(message string)
}

// EventType 呈现事件类型
type EventType string

const (
	EventBusy    EventType = "busy"
	EventIdle    EventType = "idle"
	EventResult  EventType = "result"
	EventFailure EventType = "failure"
)

// Event 呈现事件
type Event struct {
	Type      EventType `json:"type"`
	ARLink    string    `json:"arLink,omitempty"`
	QRCodeURL string    `json:"qrCodeUrl,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// EventPresenter 把回调转换为 Event
type EventPresenter struct {
	sink func(Event)
	now  func() time.Time
}

// NewEventPresenter creates a presenter that forwards events to sink.
func NewEventPresenter(sink func(Event)) *EventPresenter {
	return &EventPresenter{sink: sink, now: time.Now}
}

func (p *EventPresenter) SetBusy(busy bool) {
	t := EventIdle
	if busy {
		t = EventBusy
	}
	p.sink(Event{Type: t, Time: p.now()})
}

func (p *EventPresenter) PresentResult(res *publish.Result) {
	p.sink(Event{Type: EventResult, ARLink: res.ARLink, QRCodeURL: res.QRCodeURL, Time: p.now()})
}

func (p *EventPresenter) PresentFailure(message string) {
	p.sink(Event{Type: EventFailure, Message: message, Time: p.now()})
}

// LogPresenter 只记录日志
type LogPresenter struct {
	logger *zap.Logger
}

// NewLogPresenter creates a logging presenter.
func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPresenter{logger: logger.With(zap.String("component", "presenter"))}
}

func (p *LogPresenter) SetBusy(busy bool) {
	p.logger.Debug("busy state changed", zap.Bool("busy", busy))
}

func (p *LogPresenter) PresentResult(res *publish.Result) {
	p.logger.Info("share link ready", zap.String("ar_link", res.ARLink), zap.Bool("code", res.QRCodeURL != ""))
}

func (p *LogPresenter) PresentFailure(message string) {
	p.logger.Warn("publish failed", zap.String("message", message))
}

// MultiPresenter 依次通知多个 Presenter
type MultiPresenter []Presenter

func (m MultiPresenter) SetBusy(busy bool) {
	for _, p := range m {
		p.SetBusy(busy)
	}
}

func (m MultiPresenter) PresentResult(res *publish.Result) {
	for _, p := range m {
		p.PresentResult(res)
	}
}

func (m MultiPresenter) PresentFailure(message string) {
	for _, p := range m {
		p.PresentFailure(message)
	}
}

// FailureMessage maps an error to the generic notice shown to users.
func FailureMessage(err error) string {
	switch types.GetErrorCode(err) {
	case types.ErrNoSubjectLoaded:
		return "Load a structure before exporting."
	case types.ErrExportFailure:
		return "Export failed. Please try again."
	case types.ErrEncodingFailure:
		return "Could not prepare the model for upload."
	case types.ErrPublishFailure:
		return "Publishing failed. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
