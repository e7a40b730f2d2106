package dbc

// Signal describes one signal's bit layout and scaling within a message.
type Signal struct {
	Name         string
	StartBit     int
	Size         int
	LittleEndian bool
	Signed       bool
	Factor       float64
	Offset       float64
	Min          float64
	Max          float64
	Unit         string
	Receivers    []string

	// Values maps raw integers to enumeration labels (VAL_ table).
	Values map[int64]string
}

// Message is one compiled BO_ definition. Immutable after Load; safe to
// share across concurrent decode and detect calls.
type Message struct {
	ID       uint32
	Name     string
	DLC      uint8
	Sender   string
	Extended bool

	// CycleTime is the declared period in milliseconds, 0 when absent.
	CycleTime int
	Comment   string

	SignalOrder []string
	Signals     map[string]*Signal
}

// Database is the compiled frame-id -> layout table for one DBC file.
type Database struct {
	Path     string
	Nodes    []string
	Messages map[uint32]*Message

	// Warnings lists layout violations found at load time, such as a signal
	// extending past the declared DLC. Violations are reported, never
	// silently truncated away.
	Warnings []string
}

// Message looks up a layout by frame identifier.
func (db *Database) Message(id uint32) (*Message, bool) {
	m, ok := db.Messages[id]
	return m, ok
}

// Statistics summarizes the compiled database.
type Statistics struct {
	Messages      int
	Signals       int
	Nodes         int
	ExtendedIDs   int
	StandardIDs   int
	WithCycleTime int
	ValueTables   int
}

// Statistics computes summary counts over the database.
func (db *Database) Statistics() Statistics {
	s := Statistics{
		Messages: len(db.Messages),
		Nodes:    len(db.Nodes),
	}
	for _, msg := range db.Messages {
		s.Signals += len(msg.Signals)
		if msg.Extended {
			s.ExtendedIDs++
		} else {
			s.StandardIDs++
		}
		if msg.CycleTime > 0 {
			s.WithCycleTime++
		}
		for _, sig := range msg.Signals {
			if len(sig.Values) > 0 {
				s.ValueTables++
			}
		}
	}
	return s
}
