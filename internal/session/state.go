package session

// Mode names the workflow step a conversation is in
type Mode string

const (
	ModeIdle                   Mode = "IDLE"
	ModeWaitPlayerLookup       Mode = "WAIT_PLAYER_LOOKUP"
	ModeWaitCheckCode          Mode = "WAIT_CHECK_CODE"
	ModeWaitActivatePlayerID   Mode = "WAIT_ACTIVATE_PLAYER_ID"
	ModeWaitSelectionMode      Mode = "WAIT_SELECTION_MODE"
	ModeWaitActivateCodeSingle Mode = "WAIT_ACTIVATE_CODE_SINGLE"
	ModeWaitActivateCodeStack  Mode = "WAIT_ACTIVATE_CODE_BULK_STACK"
	ModeWaitBulkIDs            Mode = "WAIT_BULK_IDS"
	ModeWaitBulkCodes          Mode = "WAIT_BULK_CODES"
	ModeWaitBulkConfirm        Mode = "WAIT_BULK_CONFIRM"
	ModeWaitTicketMessage      Mode = "WAIT_TICKET_MESSAGE"
)

// State is the per-conversation workflow state. Each implementation
// carries only the data its step needs.
type State interface {
	Mode() Mode
}

// Player is a verified player carried between workflow steps
type Player struct {
	ID   string
	Name string
}

// BulkEntry pairs a verified player with the code assigned to it
type BulkEntry struct {
	Player Player
	Code   string
}

type Idle struct{}

type WaitPlayerLookup struct{}

type WaitCheckCode struct{}

type WaitActivatePlayerID struct{}

// WaitSelectionMode waits for the single or stack choice for Player
type WaitSelectionMode struct {
	Player Player
}

type WaitActivateCodeSingle struct {
	Player Player
}

type WaitActivateCodeBulkStack struct {
	Player Player
}

type WaitBulkIDs struct{}

// WaitBulkCodes holds the verified players in the order they were entered
type WaitBulkCodes struct {
	Players []Player
}

// WaitBulkConfirm holds the reviewed batch awaiting confirmation
type WaitBulkConfirm struct {
	Entries []BulkEntry
}

type WaitTicketMessage struct{}

func (Idle) Mode() Mode                      { return ModeIdle }
func (WaitPlayerLookup) Mode() Mode          { return ModeWaitPlayerLookup }
func (WaitCheckCode) Mode() Mode             { return ModeWaitCheckCode }
func (WaitActivatePlayerID) Mode() Mode      { return ModeWaitActivatePlayerID }
func (WaitSelectionMode) Mode() Mode         { return ModeWaitSelectionMode }
func (WaitActivateCodeSingle) Mode() Mode    { return ModeWaitActivateCodeSingle }
func (WaitActivateCodeBulkStack) Mode() Mode { return ModeWaitActivateCodeStack }
func (WaitBulkIDs) Mode() Mode               { return ModeWaitBulkIDs }
func (WaitBulkCodes) Mode() Mode             { return ModeWaitBulkCodes }
func (WaitBulkConfirm) Mode() Mode           { return ModeWaitBulkConfirm }
func (WaitTicketMessage) Mode() Mode         { return ModeWaitTicketMessage }

// IsIdle reports whether st is the idle state
func IsIdle(st State) bool {
	return st == nil || st.Mode() == ModeIdle
}
