package eventbus

type RunEventType string

const (
	RunEventTaskSucceeded RunEventType = "TaskSucceeded"
	RunEventTaskFailed    RunEventType = "TaskFailed"
	RunEventFinished      RunEventType = "RunFinished"
)

type RunEvent struct {
	Type    RunEventType
	RunID   uint
	TaskID  uint
	Keyword string
	Status  string
}

type RunEventHandler = Handler[RunEvent]
type RunEventBus = Bus[RunEventType, RunEvent]

func NewRunEventBus() *RunEventBus {
	return NewBus[RunEventType, RunEvent]()
}
