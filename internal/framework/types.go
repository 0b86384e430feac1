package framework

// Message 队列中拉到的一条任务
type Message struct {
	ID    string
	Queue string
	Data  []byte // JSON 编码的 Job
}
