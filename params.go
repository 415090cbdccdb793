package asyncserial

import "fmt"

// DataBits is the number of data bits per character.
type DataBits int

const (
	DataBits8 DataBits = iota
	DataBits7
)

func (d DataBits) String() string {
	switch d {
	case DataBits7:
		return "7"
	case DataBits8:
		return "8"
	default:
		return fmt.Sprintf("DataBits(%d)", int(d))
	}
}

// StopBits is the number of stop bits per character.
type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits2
)

func (s StopBits) String() string {
	switch s {
	case StopBits1:
		return "1"
	case StopBits2:
		return "2"
	default:
		return fmt.Sprintf("StopBits(%d)", int(s))
	}
}

// Parity is the parity mode of the line.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

// SerialParams is a line configuration. It is copied into open and
// reconfiguration requests; validity is decided by the Device.
type SerialParams struct {
	Baud     uint32
	DataBits DataBits
	StopBits StopBits
	Parity   Parity
}

// DefaultParams returns 115200 baud, 8 data bits, no parity, 1 stop bit.
func DefaultParams() SerialParams {
	return SerialParams{
		Baud:     115200,
		DataBits: DataBits8,
		StopBits: StopBits1,
		Parity:   ParityNone,
	}
}

func (p SerialParams) String() string {
	parity := "N"
	switch p.Parity {
	case ParityOdd:
		parity = "O"
	case ParityEven:
		parity = "E"
	}
	return fmt.Sprintf("%d %s%s%s", p.Baud, p.DataBits, parity, p.StopBits)
}
