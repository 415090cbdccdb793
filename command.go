package asyncserial

type commandKind int

const (
	cmdCancel commandKind = iota
	cmdPollRead
	cmdSend
	cmdSetParams
	cmdFlush
)

func (k commandKind) String() string {
	switch k {
	case cmdCancel:
		return "cancel"
	case cmdPollRead:
		return "poll-read"
	case cmdSend:
		return "send"
	case cmdSetParams:
		return "set-params"
	case cmdFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// command is an intent for the worker. Commands are handled strictly in
// the order they were queued.
type command struct {
	kind   commandKind
	data   []byte
	params SerialParams
	// reply is buffered with capacity 1 and answered exactly once.
	reply chan error
}

var (
	cancelCommand   = command{kind: cmdCancel}
	pollReadCommand = command{kind: cmdPollRead}
)

// answer completes a one-shot reply, if the command carries one.
func (c command) answer(err error) {
	if c.reply != nil {
		c.reply <- err
	}
}

// event is a result from the worker: received bytes or a terminal error.
type event struct {
	data []byte
	err  error
}
