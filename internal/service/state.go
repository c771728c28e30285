package service

// State is the progress of one reservation transaction.
type State int

const (
	StateStarted State = iota
	StateSeatsChecked
	StatePriceResolved
	StateOccupancyWritten
	StateLedgerUpdated
	StateBookingRecorded
	StateCommitted
	StateAborted
)

var stateNames = [...]string{
	"Started",
	"SeatsChecked",
	"PriceResolved",
	"OccupancyWritten",
	"LedgerUpdated",
	"BookingRecorded",
	"Committed",
	"Aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateCommitted || s == StateAborted }
