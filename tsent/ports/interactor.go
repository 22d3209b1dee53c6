package ports

type Interactor interface {
	Output(message string)
	Warning(message string)
	Error(message string, err error)
	StartProgress(total int, message string)
	AdvanceProgress(n int)
	StopProgress(success bool, message string)
}
