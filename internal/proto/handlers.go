// Package proto implements the XVC wire protocol: a buffered decoder over
// a connection, ULEB128-based v1.1 verbs, the legacy v1.0 shift:/settck:
// encoding, capability negotiation, and dispatch to a binding-supplied
// Handlers table.
package proto

// Handlers mirrors the server's handler table: each field is an optional
// callback for one verb. A nil field means the corresponding capability is
// absent and the verb is rejected as unknown, so capability gating is
// driven entirely by which fields a binding sets, never by string
// matching against a capability name.
type Handlers struct {
	// OpenPort is called once per accepted connection before Serve begins
	// reading verbs.
	OpenPort func() error

	// ClosePort is called once after Serve returns, regardless of error.
	ClosePort func()

	// SetTCK handles settck:, returning the actual period applied.
	SetTCK func(nsPeriod uint32) (actual uint32, err error)

	// ShiftTMSTDI handles shift: (v1.0), shifting numBits bits of TMS/TDI
	// and returning the same number of TDO bytes.
	ShiftTMSTDI func(numBits uint32, tmsTdi []byte) (tdo []byte, err error)

	// Lock/Unlock implement the optional locking capability.
	Lock   func() error
	Unlock func() error

	// RegisterShift handles irshift:/drshift:, shifting numBits bits
	// through the given register, honoring endState per the caller's state
	// machine.
	RegisterShift func(register string, numBits uint32, endState uint32, tdi []byte) (tdo []byte, err error)

	// State handles state:, moving to the given JTAG state.
	State func(endState uint32, numClocks uint32) error

	// Flush is called when the client batches verbs and expects replies to
	// arrive together.
	Flush func() error

	// MemRead/MemWrite implement the memory capability.
	MemRead  func(addr uint64, numBytes uint32) (data []byte, err error)
	MemWrite func(addr uint64, data []byte) error

	// IDPC/EDPC implement the DPC fast-packet capability.
	IDPC func(packet []byte) error
	EDPC func() (packet []byte, err error)
}

// HasLocking reports whether the handler table advertises the locking
// capability.
func (h *Handlers) HasLocking() bool { return h.Lock != nil && h.Unlock != nil }

// HasMemory reports whether the handler table advertises the memory
// capability.
func (h *Handlers) HasMemory() bool { return h.MemRead != nil && h.MemWrite != nil }

// HasDPC reports whether the handler table advertises the DPC fast-packet
// capability.
func (h *Handlers) HasDPC() bool { return h.IDPC != nil && h.EDPC != nil }
